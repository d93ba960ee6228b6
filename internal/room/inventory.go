package room

import (
	"crypto/sha1"
	"sort"
	"strings"

	"github.com/draftroom/draftroom/internal/draft"
	"github.com/draftroom/draftroom/internal/protocol"
)

// hashAlphabet is the base-32 alphabet Cockatrice uses for deck hashes.
const hashAlphabet = "0123456789abcdefghijklmnopqrstuv"

// Inventory is a human player's accumulated cards, indexed by zone, plus
// per-zone basic land quantities.
type Inventory struct {
	cards map[protocol.Zone][]draft.Card
	lands map[protocol.Zone]map[string]int
}

func NewInventory() *Inventory {
	return &Inventory{
		cards: map[protocol.Zone][]draft.Card{},
		lands: map[protocol.Zone]map[string]int{},
	}
}

func (inv *Inventory) Add(card draft.Card, zone protocol.Zone) {
	inv.cards[zone] = append(inv.cards[zone], card)
}

// Move relocates one copy of card between zones; false when the card is not
// in the source zone.
func (inv *Inventory) Move(card draft.Card, from, to protocol.Zone) bool {
	zone := inv.cards[from]
	for i, c := range zone {
		if c == card {
			inv.cards[from] = append(zone[:i], zone[i+1:]...)
			inv.cards[to] = append(inv.cards[to], card)
			return true
		}
	}
	return false
}

func (inv *Inventory) SetBasicLand(zone protocol.Zone, land string, quantity int) {
	if inv.lands[zone] == nil {
		inv.lands[zone] = map[string]int{}
	}
	if quantity <= 0 {
		delete(inv.lands[zone], land)
		return
	}
	inv.lands[zone][land] = quantity
}

// TotalCards counts drafted cards across all zones; basic lands excluded.
func (inv *Inventory) TotalCards() int {
	n := 0
	for _, zone := range inv.cards {
		n += len(zone)
	}
	return n
}

// Cards returns every drafted card with its zone, in stable order.
func (inv *Inventory) Cards() []protocol.InventoryCard {
	var out []protocol.InventoryCard
	for _, zone := range []protocol.Zone{protocol.ZoneMain, protocol.ZoneSideboard, protocol.ZoneJunk, protocol.ZoneAuto} {
		for _, c := range inv.cards[zone] {
			out = append(out, protocol.InventoryCard{Card: c, Zone: zone})
		}
	}
	return out
}

func (inv *Inventory) BasicLands() []protocol.BasicLandQuantity {
	var out []protocol.BasicLandQuantity
	for _, zone := range []protocol.Zone{protocol.ZoneMain, protocol.ZoneSideboard, protocol.ZoneJunk, protocol.ZoneAuto} {
		lands := inv.lands[zone]
		names := make([]string, 0, len(lands))
		for name := range lands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, protocol.BasicLandQuantity{Zone: zone, Land: name, Quantity: lands[name]})
		}
	}
	return out
}

// Hash computes the Cockatrice-compatible deck hash: maindeck entries (MAIN
// and AUTO zones plus main-zone basic lands) as lowercased names, sideboard
// entries prefixed "SB:", sorted, joined with ";", SHA-1, and the first 40
// bits rendered in base 32.
func (inv *Inventory) Hash() string {
	var entries []string

	for _, zone := range []protocol.Zone{protocol.ZoneMain, protocol.ZoneAuto} {
		for _, c := range inv.cards[zone] {
			entries = append(entries, strings.ToLower(c.Name))
		}
		for land, qty := range inv.lands[zone] {
			for i := 0; i < qty; i++ {
				entries = append(entries, strings.ToLower(land))
			}
		}
	}
	for _, c := range inv.cards[protocol.ZoneSideboard] {
		entries = append(entries, "SB:"+strings.ToLower(c.Name))
	}
	for land, qty := range inv.lands[protocol.ZoneSideboard] {
		for i := 0; i < qty; i++ {
			entries = append(entries, "SB:"+strings.ToLower(land))
		}
	}

	sort.Strings(entries)
	sum := sha1.Sum([]byte(strings.Join(entries, ";")))

	val := uint64(sum[0])<<32 | uint64(sum[1])<<24 | uint64(sum[2])<<16 |
		uint64(sum[3])<<8 | uint64(sum[4])

	var hash [8]byte
	for i := 7; i >= 0; i-- {
		hash[i] = hashAlphabet[val&0x1F]
		val >>= 5
	}
	return string(hash[:])
}
