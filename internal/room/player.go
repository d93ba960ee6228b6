package room

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/bot"
	"github.com/draftroom/draftroom/internal/draft"
	"github.com/draftroom/draftroom/internal/protocol"
)

// Conn is the write side of a client connection. Send must never block;
// slow clients are the transport layer's problem.
type Conn interface {
	Send(env protocol.Envelope)
	Close()
	RemoteAddr() string
}

// Player occupies a chair. Both variants observe the draft directly.
type Player interface {
	draft.Observer
	Name() string
	ChairIndex() int
	IsBot() bool
}

// HumanPlayer is a seat backed by a network connection. All methods are
// called from the owning room's goroutine.
type HumanPlayer struct {
	name  string
	chair int
	conn  Conn // nil while departed
	inv   *Inventory
	ready bool
	log   *zap.Logger

	// pickZone is the destination zone for the in-flight explicit pick.
	pickZone protocol.Zone
}

func NewHumanPlayer(name string, chair int, log *zap.Logger) *HumanPlayer {
	return &HumanPlayer{
		name:     name,
		chair:    chair,
		inv:      NewInventory(),
		log:      log,
		pickZone: protocol.ZoneMain,
	}
}

func (p *HumanPlayer) Name() string    { return p.name }
func (p *HumanPlayer) ChairIndex() int { return p.chair }
func (p *HumanPlayer) IsBot() bool     { return false }

func (p *HumanPlayer) Attach(conn Conn)   { p.conn = conn }
func (p *HumanPlayer) Detach()            { p.conn = nil }
func (p *HumanPlayer) Connected() bool    { return p.conn != nil }
func (p *HumanPlayer) SetReady(r bool)    { p.ready = r }
func (p *HumanPlayer) Ready() bool        { return p.ready }
func (p *HumanPlayer) Inventory() *Inventory { return p.inv }
func (p *HumanPlayer) DeckHash() string   { return p.inv.Hash() }

// SetPickZone records where the next explicit pick should land.
func (p *HumanPlayer) SetPickZone(zone protocol.Zone) {
	switch zone {
	case protocol.ZoneMain, protocol.ZoneSideboard, protocol.ZoneJunk, protocol.ZoneAuto:
		p.pickZone = zone
	default:
		p.pickZone = protocol.ZoneMain
	}
}

// Send forwards to the attached connection, dropping silently while
// departed.
func (p *HumanPlayer) Send(env protocol.Envelope) {
	if p.conn != nil {
		p.conn.Send(env)
	}
}

// SendInventory pushes the player's full inventory to the client.
func (p *HumanPlayer) SendInventory() {
	p.Send(protocol.NewEnvelope(protocol.TypePlayerInventoryInd, protocol.PlayerInventoryInd{
		DraftedCards: p.inv.Cards(),
		BasicLands:   p.inv.BasicLands(),
	}))
}

// draft.Observer

func (p *HumanPlayer) NewPack(chair int, packID uint32, cards []draft.Card) {
	if chair != p.chair {
		return
	}
	p.Send(protocol.NewEnvelope(protocol.TypePlayerCurrentPackInd, protocol.PlayerCurrentPackInd{
		PackID: packID,
		Cards:  cards,
	}))
}

func (p *HumanPlayer) PackQueueChanged(chair, queued int) {}

func (p *HumanPlayer) CardSelected(chair int, packID uint32, card draft.Card, auto bool) {
	if chair != p.chair {
		return
	}

	zone := p.pickZone
	if auto {
		zone = protocol.ZoneAuto
	}
	p.inv.Add(card, zone)

	if auto {
		p.Send(protocol.NewEnvelope(protocol.TypePlayerAutoCardSelInd, protocol.PlayerAutoCardSelectionInd{
			PackID: packID,
			Card:   card,
		}))
	}
}

func (p *HumanPlayer) RoundBegin(round int)                      {}
func (p *HumanPlayer) PostRoundTimerStarted(round, ticks int)    {}
func (p *HumanPlayer) DraftComplete()                            {}
func (p *HumanPlayer) DraftError(err error)                      {}

func (p *HumanPlayer) PublicStateChanged(packID uint32, states []draft.PublicCardState, activeChair int) {
}

// BotPlayer fills a seat with an autonomous picker. It reacts to draft
// callbacks synchronously.
type BotPlayer struct {
	name     string
	chair    int
	strategy bot.Strategy
	engine   *draft.Engine
	log      *zap.Logger
}

func NewBotPlayer(chair int, strategy bot.Strategy, engine *draft.Engine, log *zap.Logger) *BotPlayer {
	return &BotPlayer{
		name:     fmt.Sprintf("Bot %d", chair),
		chair:    chair,
		strategy: strategy,
		engine:   engine,
		log:      log,
	}
}

func (b *BotPlayer) Name() string    { return b.name }
func (b *BotPlayer) ChairIndex() int { return b.chair }
func (b *BotPlayer) IsBot() bool     { return true }

// draft.Observer

func (b *BotPlayer) NewPack(chair int, packID uint32, cards []draft.Card) {
	if chair != b.chair || len(cards) == 0 {
		return
	}
	card := b.strategy.ChooseCard(cards)
	if _, err := b.engine.Pick(b.chair, packID, card.Name); err != nil {
		b.log.Warn("bot pick failed",
			zap.Int("chair", b.chair),
			zap.Uint32("pack", packID),
			zap.Error(err))
	}
}

func (b *BotPlayer) PublicStateChanged(packID uint32, states []draft.PublicCardState, activeChair int) {
	if activeChair != b.chair {
		return
	}

	var open []draft.Card
	for _, st := range states {
		if st.SelectedChairIndex < 0 {
			open = append(open, st.Card)
		}
	}
	if len(open) == 0 {
		return
	}
	card := b.strategy.ChooseCard(open)
	if _, err := b.engine.Pick(b.chair, packID, card.Name); err != nil {
		b.log.Warn("bot grid pick failed", zap.Int("chair", b.chair), zap.Error(err))
	}
}

func (b *BotPlayer) PackQueueChanged(chair, queued int) {}

func (b *BotPlayer) CardSelected(chair int, packID uint32, card draft.Card, auto bool) {}

func (b *BotPlayer) RoundBegin(round int)                   {}
func (b *BotPlayer) PostRoundTimerStarted(round, ticks int) {}
func (b *BotPlayer) DraftComplete()                         {}
func (b *BotPlayer) DraftError(err error)                   {}
