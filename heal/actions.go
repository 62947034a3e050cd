package heal

import (
	"context"
	"fmt"

	"github.com/hazyhaar/selfheal/driver"
)

// Standard actions. They read the selector from "selector" (or "xpath"),
// and need a page that implements driver.Interactor.
//
//	Click    selector
//	Type     selector, text
//	Press    key, optional selector
//	Navigate url

func Click(ctx context.Context, page driver.Page, args Args) (any, error) {
	it, err := interactor(page, "click")
	if err != nil {
		return nil, err
	}
	return nil, it.Click(ctx, actionSelector(args))
}

func Type(ctx context.Context, page driver.Page, args Args) (any, error) {
	it, err := interactor(page, "type")
	if err != nil {
		return nil, err
	}
	return nil, it.Type(ctx, actionSelector(args), args.String("text"))
}

func Press(ctx context.Context, page driver.Page, args Args) (any, error) {
	it, err := interactor(page, "press")
	if err != nil {
		return nil, err
	}
	key := args.String("key")
	if key == "" {
		return nil, fmt.Errorf("heal: press: key is required")
	}
	return nil, it.Press(ctx, actionSelector(args), key)
}

func Navigate(ctx context.Context, page driver.Page, args Args) (any, error) {
	it, err := interactor(page, "navigate")
	if err != nil {
		return nil, err
	}
	url := args.String("url")
	if url == "" {
		return nil, fmt.Errorf("heal: navigate: url is required")
	}
	return nil, it.Navigate(ctx, url)
}

// Actions maps the standard action names to their implementation.
var Actions = map[string]Action{
	"click":    Click,
	"type":     Type,
	"press":    Press,
	"navigate": Navigate,
}

func interactor(page driver.Page, action string) (driver.Interactor, error) {
	it, ok := page.(driver.Interactor)
	if !ok {
		return nil, fmt.Errorf("heal: %s: page %T cannot perform actions", action, page)
	}
	return it, nil
}

func actionSelector(args Args) string {
	if s := args.String("selector"); s != "" {
		return s
	}
	return args.String("xpath")
}
