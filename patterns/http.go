package patterns

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler returns a read-only HTTP view of the store:
//
//	GET /patterns?limit=N
//	GET /patterns/resolve?selector=S&url=U&limit=N
//	GET /stats
func (s *Store) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the diagnostic routes on an existing router.
func (s *Store) RegisterHTTP(r chi.Router) {
	r.Get("/patterns", s.handleList)
	r.Get("/patterns/resolve", s.handleResolve)
	r.Get("/stats", s.handleStats)
}

func (s *Store) handleList(w http.ResponseWriter, r *http.Request) {
	ps, err := s.GetAllPatterns(r.Context(), queryInt(r, "limit"))
	if err != nil {
		s.logger.Error("patterns: list", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ps == nil {
		ps = []*Pattern{}
	}
	writeJSON(w, ps)
}

func (s *Store) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("selector") == "" {
		jsonErr(w, "selector is required", http.StatusBadRequest)
		return
	}
	resp, err := s.resolve(r.Context(), q.Get("selector"), q.Get("url"), queryInt(r, "limit"))
	if err != nil {
		s.logger.Error("patterns: resolve", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (s *Store) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Stats(r.Context())
	if err != nil {
		s.logger.Error("patterns: stats", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
