// Package bot holds the pick strategies autonomous players use to fill
// empty seats.
package bot

import (
	"math/rand"

	"github.com/draftroom/draftroom/internal/draft"
)

// Strategy decides which card a bot takes from a pack. Implementations must
// be cheap: picks run synchronously on the room's event path.
type Strategy interface {
	ChooseCard(cards []draft.Card) draft.Card
}

// RandomStrategy picks uniformly at random.
type RandomStrategy struct {
	rng *rand.Rand
}

func NewRandomStrategy(rng *rand.Rand) *RandomStrategy {
	return &RandomStrategy{rng: rng}
}

func (s *RandomStrategy) ChooseCard(cards []draft.Card) draft.Card {
	return cards[s.rng.Intn(len(cards))]
}

// FirstCardStrategy always takes the first card; handy for tests that need
// fully deterministic bots.
type FirstCardStrategy struct{}

func (FirstCardStrategy) ChooseCard(cards []draft.Card) draft.Card {
	return cards[0]
}
