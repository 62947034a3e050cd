package patterns

import (
	"fmt"

	"github.com/hazyhaar/selfheal/dom"
)

// Pattern is one stored selector usage record.
type Pattern struct {
	ID                  string   `json:"id"`
	Action              string   `json:"action"`
	Selector            string   `json:"selector"`
	URL                 string   `json:"url"`
	Description         string   `json:"description,omitempty"`
	Timestamp           int64    `json:"timestamp"`
	Weight              float64  `json:"weight"`
	UsageCount          int      `json:"usage_count"`
	SuccessRate         float64  `json:"success_rate"`
	Failed              bool     `json:"failed"`
	ReplacementSelector string   `json:"replacement_selector,omitempty"`
	FullElementHTML     string   `json:"full_element_html,omitempty"`
	ParentElement       string   `json:"parent_element,omitempty"`
	ChildElements       []string `json:"child_elements,omitempty"`
	SiblingElements     []string `json:"sibling_elements,omitempty"`
	Active              bool     `json:"active"`
}

// SaveParams describes one observed use of a selector.
type SaveParams struct {
	Action      string
	Selector    string
	URL         string
	Description string
	Success     bool

	// ReplacementSelector is kept only when Success is false.
	ReplacementSelector string

	// DOM fields overwrite stored context only when non-empty.
	DOM *dom.Context
}

// Stats summarises the store.
type Stats struct {
	Patterns       int     `json:"patterns"`
	Failed         int     `json:"failed"`
	URLs           int     `json:"urls"`
	TotalUsage     int     `json:"total_usage"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
}

// StoreError wraps a persistence failure.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("patterns: %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }
