package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftroom/draftroom/internal/draft"
	"github.com/draftroom/draftroom/internal/protocol"
)

func card(name string) draft.Card {
	return draft.Card{SetCode: "TST", Name: name}
}

func TestInventoryAddAndMove(t *testing.T) {
	inv := NewInventory()
	inv.Add(card("Shock"), protocol.ZoneMain)
	inv.Add(card("Shock"), protocol.ZoneMain)
	inv.Add(card("Cancel"), protocol.ZoneAuto)

	assert.Equal(t, 3, inv.TotalCards())

	require.True(t, inv.Move(card("Shock"), protocol.ZoneMain, protocol.ZoneSideboard))
	assert.Equal(t, 3, inv.TotalCards())

	cards := inv.Cards()
	zones := map[protocol.Zone]int{}
	for _, c := range cards {
		zones[c.Zone]++
	}
	assert.Equal(t, 1, zones[protocol.ZoneMain])
	assert.Equal(t, 1, zones[protocol.ZoneSideboard])
	assert.Equal(t, 1, zones[protocol.ZoneAuto])

	assert.False(t, inv.Move(card("Lightning Bolt"), protocol.ZoneMain, protocol.ZoneJunk))
}

func TestInventoryBasicLands(t *testing.T) {
	inv := NewInventory()
	inv.SetBasicLand(protocol.ZoneMain, "Island", 10)
	inv.SetBasicLand(protocol.ZoneMain, "Swamp", 7)
	inv.SetBasicLand(protocol.ZoneMain, "Swamp", 8)

	lands := inv.BasicLands()
	require.Len(t, lands, 2)
	assert.Equal(t, "Island", lands[0].Land)
	assert.Equal(t, 10, lands[0].Quantity)
	assert.Equal(t, 8, lands[1].Quantity)

	inv.SetBasicLand(protocol.ZoneMain, "Island", 0)
	assert.Len(t, inv.BasicLands(), 1)
}

func TestDeckHashStableAndOrderIndependent(t *testing.T) {
	a := NewInventory()
	a.Add(card("Shock"), protocol.ZoneMain)
	a.Add(card("Cancel"), protocol.ZoneMain)

	b := NewInventory()
	b.Add(card("Cancel"), protocol.ZoneMain)
	b.Add(card("Shock"), protocol.ZoneMain)

	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 8)
}

func TestDeckHashDistinguishesZones(t *testing.T) {
	a := NewInventory()
	a.Add(card("Shock"), protocol.ZoneMain)

	b := NewInventory()
	b.Add(card("Shock"), protocol.ZoneSideboard)

	c := NewInventory()
	c.Add(card("Shock"), protocol.ZoneJunk)

	assert.NotEqual(t, a.Hash(), b.Hash())
	// Junk is excluded from the hash entirely.
	assert.Equal(t, NewInventory().Hash(), c.Hash())
}

func TestDeckHashCountsAutoZoneAsMaindeck(t *testing.T) {
	a := NewInventory()
	a.Add(card("Shock"), protocol.ZoneMain)

	b := NewInventory()
	b.Add(card("Shock"), protocol.ZoneAuto)

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestDeckHashChangesWithBasicLands(t *testing.T) {
	a := NewInventory()
	a.Add(card("Shock"), protocol.ZoneMain)
	before := a.Hash()

	a.SetBasicLand(protocol.ZoneMain, "Mountain", 12)
	assert.NotEqual(t, before, a.Hash())
}
