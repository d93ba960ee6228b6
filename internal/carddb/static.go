package carddb

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/draftroom/draftroom/internal/draft"
)

// StaticSet is an in-memory set definition for the Static database.
type StaticSet struct {
	Name string
	// CardsByRarity maps rarity to card names available in that rarity.
	CardsByRarity map[string][]string
	// BoosterSlots describes booster composition as (rarity, count) pairs.
	// Empty means the set cannot generate boosters.
	BoosterSlots []BoosterSlot
}

type BoosterSlot struct {
	Rarity string
	Count  int
}

// Static is an in-memory Database used by tests and tooling.
type Static struct {
	sets map[string]StaticSet
	mu   sync.Mutex // guards rng
	rng  *rand.Rand
}

// NewStatic builds a Static database. rng may be nil for unseeded draws.
func NewStatic(sets map[string]StaticSet, rng *rand.Rand) *Static {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Static{sets: sets, rng: rng}
}

func (s *Static) SetCodes() []string {
	codes := make([]string, 0, len(s.sets))
	for code := range s.sets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s *Static) SetName(code string) (string, bool) {
	set, ok := s.sets[code]
	if !ok {
		return "", false
	}
	return set.Name, true
}

func (s *Static) HasBoosters(code string) bool {
	set, ok := s.sets[code]
	return ok && len(set.BoosterSlots) > 0
}

func (s *Static) Booster(code string) ([]draft.Card, error) {
	set, ok := s.sets[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSet, code)
	}
	if len(set.BoosterSlots) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBoosterSpec, code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cards []draft.Card
	for _, slot := range set.BoosterSlots {
		pool := set.CardsByRarity[slot.Rarity]
		if len(pool) == 0 {
			return nil, fmt.Errorf("set %s has no %s cards", code, slot.Rarity)
		}
		for i := 0; i < slot.Count; i++ {
			name := pool[s.rng.Intn(len(pool))]
			cards = append(cards, draft.Card{SetCode: code, Name: name})
		}
	}
	return cards, nil
}

// TestSet returns a StaticSet with enough cards for a standard 15-card
// booster, convenient for tests.
func TestSet(name string) StaticSet {
	commons := make([]string, 40)
	uncommons := make([]string, 20)
	rares := make([]string, 10)
	for i := range commons {
		commons[i] = fmt.Sprintf("%s Common %d", name, i)
	}
	for i := range uncommons {
		uncommons[i] = fmt.Sprintf("%s Uncommon %d", name, i)
	}
	for i := range rares {
		rares[i] = fmt.Sprintf("%s Rare %d", name, i)
	}
	return StaticSet{
		Name: name,
		CardsByRarity: map[string][]string{
			"common":   commons,
			"uncommon": uncommons,
			"rare":     rares,
		},
		BoosterSlots: []BoosterSlot{
			{Rarity: "rare", Count: 1},
			{Rarity: "uncommon", Count: 3},
			{Rarity: "common", Count: 11},
		},
	}
}
