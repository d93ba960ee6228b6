package draft

import (
	"errors"
	"fmt"
	"math/rand"
)

// PoolUnbounded is reported by dispensers that draw with replacement from an
// effectively infinite pool.
const PoolUnbounded = -1

var ErrEmptyCardPool = errors.New("dispenser card pool is empty")
var ErrNoBoosterSource = errors.New("dispenser has no booster set codes")

// BoosterSource produces random boosters; satisfied by carddb.Database.
type BoosterSource interface {
	Booster(code string) ([]Card, error)
}

// Dispenser produces cards on demand for dispensations.
type Dispenser interface {
	// PoolSize is informational: the number of cards in the dispenser's
	// fixed pool, or PoolUnbounded when it has no fixed pool.
	PoolSize() int

	// Dispense returns exactly n cards.
	Dispense(n int) ([]Card, error)

	// DispenseAll returns the dispenser's natural unit: one whole booster,
	// or the full custom-list pool.
	DispenseAll() ([]Card, error)
}

// BoosterDispenser asks the card database for boosters, cycling through its
// set codes.
type BoosterDispenser struct {
	source   BoosterSource
	setCodes []string
	next     int
}

func NewBoosterDispenser(source BoosterSource, setCodes []string) (*BoosterDispenser, error) {
	if len(setCodes) == 0 {
		return nil, ErrNoBoosterSource
	}
	return &BoosterDispenser{source: source, setCodes: setCodes}, nil
}

func (d *BoosterDispenser) PoolSize() int {
	return PoolUnbounded
}

func (d *BoosterDispenser) Dispense(n int) ([]Card, error) {
	var cards []Card
	for len(cards) < n {
		booster, err := d.nextBooster()
		if err != nil {
			return nil, err
		}
		cards = append(cards, booster...)
	}
	return cards[:n], nil
}

func (d *BoosterDispenser) DispenseAll() ([]Card, error) {
	return d.nextBooster()
}

func (d *BoosterDispenser) nextBooster() ([]Card, error) {
	code := d.setCodes[d.next%len(d.setCodes)]
	d.next++

	booster, err := d.source.Booster(code)
	if err != nil {
		return nil, fmt.Errorf("generate %s booster: %w", code, err)
	}
	if len(booster) == 0 {
		return nil, fmt.Errorf("%w: set %s", ErrEmptyCardPool, code)
	}
	return booster, nil
}

// CustomListDispenser draws uniformly with replacement from the expanded
// weighted multiset of a custom card list.
type CustomListDispenser struct {
	pool []Card
	rng  *rand.Rand
}

func NewCustomListDispenser(list CustomCardList, rng *rand.Rand) (*CustomListDispenser, error) {
	var pool []Card
	for _, cq := range list.CardQuantities {
		for i := 0; i < cq.Quantity; i++ {
			pool = append(pool, Card{SetCode: cq.SetCode, Name: cq.Name})
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: custom list %q", ErrEmptyCardPool, list.Name)
	}
	return &CustomListDispenser{pool: pool, rng: rng}, nil
}

func (d *CustomListDispenser) PoolSize() int {
	return len(d.pool)
}

func (d *CustomListDispenser) Dispense(n int) ([]Card, error) {
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = d.pool[d.rng.Intn(len(d.pool))]
	}
	return cards, nil
}

func (d *CustomListDispenser) DispenseAll() ([]Card, error) {
	cards := make([]Card, len(d.pool))
	copy(cards, d.pool)
	return cards, nil
}

// BuildDispensers constructs the dispenser vector for a validated config.
// Booster set codes win when a spec names both sources.
func BuildDispensers(cfg Config, source BoosterSource, rng *rand.Rand) ([]Dispenser, error) {
	dispensers := make([]Dispenser, 0, len(cfg.Dispensers))
	for i, spec := range cfg.Dispensers {
		switch {
		case len(spec.BoosterSetCodes) > 0:
			d, err := NewBoosterDispenser(source, spec.BoosterSetCodes)
			if err != nil {
				return nil, fmt.Errorf("dispenser %d: %w", i, err)
			}
			dispensers = append(dispensers, d)
		case spec.CustomCardListIndex != nil:
			idx := *spec.CustomCardListIndex
			if idx < 0 || idx >= len(cfg.CustomCardLists) {
				return nil, fmt.Errorf("dispenser %d: custom card list index %d out of range", i, idx)
			}
			d, err := NewCustomListDispenser(cfg.CustomCardLists[idx], rng)
			if err != nil {
				return nil, fmt.Errorf("dispenser %d: %w", i, err)
			}
			dispensers = append(dispensers, d)
		default:
			return nil, fmt.Errorf("dispenser %d has no sources", i)
		}
	}
	return dispensers, nil
}
