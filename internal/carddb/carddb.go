// Package carddb provides the card-lookup facility the draft server depends
// on: set discovery, booster capability checks, and random booster
// generation.
package carddb

import (
	"errors"

	"github.com/draftroom/draftroom/internal/draft"
)

var ErrUnknownSet = errors.New("unknown set code")
var ErrNoBoosterSpec = errors.New("set has no booster specification")

// Database answers questions about the card pool. Implementations must be
// safe for concurrent readers; the server shares one instance across rooms.
type Database interface {
	// SetCodes lists every known set code.
	SetCodes() []string

	// SetName returns the display name for a set code.
	SetName(code string) (string, bool)

	// HasBoosters reports whether the set can generate boosters.
	HasBoosters(code string) bool

	// Booster produces one random booster pack for the set.
	Booster(code string) ([]draft.Card, error)
}
