// Package driver is the browser side of self-healing: the Page capability
// set the interceptor checks, the Interactor actions run against, a
// go-rod implementation of both, and an in-memory page for offline use.
package driver

import (
	"context"
	"errors"
)

// ErrElementNotFound is returned by an Interactor when no element matches.
var ErrElementNotFound = errors.New("driver: element not found")

// Page exposes what healing needs to know about the page under automation.
type Page interface {
	CurrentURL(ctx context.Context) (string, error)
	CurrentHTML(ctx context.Context) (string, error)
	ElementExists(ctx context.Context, selector string) (bool, error)
}

// Interactor performs the standard automation actions. Selectors are XPath
// when they start with "/", "./", "(" or "xpath=", CSS otherwise.
type Interactor interface {
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Press(ctx context.Context, selector, key string) error
	Navigate(ctx context.Context, url string) error
}
