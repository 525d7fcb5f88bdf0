// Package prefs implements the keyed preferences store consumed by the
// Locator Store for user-override Locators (spec.md §6 "Preferences store").
package prefs

import (
	"context"

	"github.com/codeloop/supervisor/core"
)

// Preferences is the narrow external-collaborator contract spec.md §6
// describes: a keyed store for booleans, integers, strings, and small JSON
// blobs, with one blob per core.LogicalElement for user-override Locators.
type Preferences interface {
	GetBool(ctx context.Context, key string, fallback bool) bool
	GetInt(ctx context.Context, key string, fallback int) int
	GetString(ctx context.Context, key string, fallback string) string
	UserOverrideLocator(ctx context.Context, element core.LogicalElement) (core.Locator, bool)
	SetUserOverrideLocator(ctx context.Context, element core.LogicalElement, locator core.Locator) error
	Close() error
}

type document struct {
	Bools            map[string]bool            `json:"bools,omitempty"`
	Ints             map[string]int             `json:"ints,omitempty"`
	Strings          map[string]string          `json:"strings,omitempty"`
	OverrideLocators map[string]core.Locator    `json:"override_locators,omitempty"`
}

func newDocument() *document {
	return &document{
		Bools:            make(map[string]bool),
		Ints:             make(map[string]int),
		Strings:          make(map[string]string),
		OverrideLocators: make(map[string]core.Locator),
	}
}
