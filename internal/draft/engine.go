package draft

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// State of one drafting session. Advances monotonically.
type State string

const (
	StateNew      State = "new"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
)

var ErrDraftNotRunning = errors.New("draft is not running")
var ErrAlreadyStarted = errors.New("draft already started")
var ErrNoSuchPack = errors.New("no pack queued for chair")
var ErrWrongPack = errors.New("pack id does not match queue head")
var ErrCardNotInPack = errors.New("card not present in pack")
var ErrCardAlreadySelected = errors.New("card already selected")
var ErrNotYourTurn = errors.New("not the active chair")
var ErrInvalidChair = errors.New("invalid chair index")

// TimerDisabled is the ticks-remaining value of a seat with no active
// selection timer.
const TimerDisabled = -1

// DefaultPostRoundTicks is the grace interval between rounds.
const DefaultPostRoundTicks = 10

// gridPackSize is the number of cards laid out face-up in a grid round.
const gridPackSize = 9

// PublicCardState is one card of a grid round's face-up pack.
type PublicCardState struct {
	Card               Card
	SelectedChairIndex int // -1 while unselected
	SelectedOrder      int
}

// Observer receives draft callbacks. Callbacks fire synchronously from
// Start, Tick and Pick; observers must not call back into the engine except
// for bot picks made from NewPack or PublicStateChanged.
type Observer interface {
	// NewPack fires when a pack reaches the head of a seat's queue.
	// A bot observer may pick synchronously from this callback.
	NewPack(chair int, packID uint32, cards []Card)

	// PackQueueChanged fires when a seat's queue grows or shrinks.
	PackQueueChanged(chair int, queued int)

	// CardSelected fires for every successful pick, auto or explicit.
	CardSelected(chair int, packID uint32, card Card, auto bool)

	RoundBegin(round int)
	PostRoundTimerStarted(round int, ticksRemaining int)
	PublicStateChanged(packID uint32, states []PublicCardState, activeChair int)
	DraftComplete()
	DraftError(err error)
}

type pack struct {
	id         uint32
	cards      []Card
	roundIndex int
}

// Engine is the state machine of one drafting session. It is not safe for
// concurrent use; the owning room serializes all access.
type Engine struct {
	cfg        Config
	dispensers []Dispenser
	log        *zap.Logger

	state        State
	currentRound int
	queues       [][]*pack
	ticks        []int
	hints        map[int]string
	observers    []Observer
	nextPackID   uint32

	postRoundTicks     int
	postRoundActive    bool
	postRoundRemaining int

	publicPresent bool
	publicPackID  uint32
	publicStates  []PublicCardState
	activeChair   int
	selectedCount int

	// dealing suppresses round-completion checks while a round's
	// dispensations are still being queued; a bot can otherwise drain its
	// queue mid-deal and advance the round early.
	dealing bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPostRoundTicks overrides the between-round grace interval; 0 disables
// it.
func WithPostRoundTicks(ticks int) Option {
	return func(e *Engine) { e.postRoundTicks = ticks }
}

// NewEngine builds an engine for a validated config. The dispenser vector
// must cover every index the config references.
func NewEngine(cfg Config, dispensers []Dispenser, log *zap.Logger, opts ...Option) (*Engine, error) {
	if cfg.ChairCount < 1 {
		return nil, fmt.Errorf("invalid chair count %d", cfg.ChairCount)
	}
	for _, round := range cfg.Rounds {
		if round.Grid != nil && round.Grid.DispenserIndex >= len(dispensers) {
			return nil, fmt.Errorf("grid round references dispenser %d of %d", round.Grid.DispenserIndex, len(dispensers))
		}
		for _, d := range round.Dispensations() {
			if d.DispenserIndex >= len(dispensers) {
				return nil, fmt.Errorf("dispensation references dispenser %d of %d", d.DispenserIndex, len(dispensers))
			}
		}
	}

	e := &Engine{
		cfg:            cfg,
		dispensers:     dispensers,
		log:            log,
		state:          StateNew,
		queues:         make([][]*pack, cfg.ChairCount),
		ticks:          make([]int, cfg.ChairCount),
		hints:          make(map[int]string),
		nextPackID:     1,
		postRoundTicks: DefaultPostRoundTicks,
	}
	for i := range e.ticks {
		e.ticks[i] = TimerDisabled
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *Engine) RemoveObserver(o Observer) {
	for i, obs := range e.observers {
		if obs == o {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			return
		}
	}
}

func (e *Engine) State() State        { return e.state }
func (e *Engine) CurrentRound() int   { return e.currentRound }
func (e *Engine) ChairCount() int     { return e.cfg.ChairCount }
func (e *Engine) PostRoundActive() bool { return e.postRoundActive }

// PostRoundTicksRemaining is only meaningful while PostRoundActive.
func (e *Engine) PostRoundTicksRemaining() int { return e.postRoundRemaining }

func (e *Engine) PackQueueSize(chair int) int {
	if chair < 0 || chair >= len(e.queues) {
		return 0
	}
	return len(e.queues[chair])
}

// TicksRemaining returns the seat's selection timer, or TimerDisabled.
func (e *Engine) TicksRemaining(chair int) int {
	if chair < 0 || chair >= len(e.ticks) {
		return TimerDisabled
	}
	return e.ticks[chair]
}

// CurrentPack returns the pack at the head of a seat's queue.
func (e *Engine) CurrentPack(chair int) (uint32, []Card, bool) {
	if chair < 0 || chair >= len(e.queues) || len(e.queues[chair]) == 0 {
		return 0, nil, false
	}
	head := e.queues[chair][0]
	cards := make([]Card, len(head.cards))
	copy(cards, head.cards)
	return head.id, cards, true
}

// PublicState returns the grid round's face-up pack, if one is present.
func (e *Engine) PublicState() (uint32, []PublicCardState, int, bool) {
	if !e.publicPresent {
		return 0, nil, 0, false
	}
	states := make([]PublicCardState, len(e.publicStates))
	copy(states, e.publicStates)
	return e.publicPackID, states, e.activeChair, true
}

func (e *Engine) IsBoosterRound() bool {
	return e.state == StateRunning && e.cfg.Rounds[e.currentRound].Booster != nil
}

func (e *Engine) isGridRound() bool {
	return e.cfg.Rounds[e.currentRound].Grid != nil
}

// Start moves the draft from NEW to RUNNING and runs round 0.
func (e *Engine) Start() error {
	if e.state != StateNew {
		return ErrAlreadyStarted
	}
	e.state = StateRunning
	e.beginRound(0)
	return nil
}

// Tick advances all wall-clock state by one second: the post-round timer and
// every seat's selection timer. Seats whose timer expires auto-pick.
func (e *Engine) Tick() {
	if e.state != StateRunning {
		return
	}

	if e.postRoundActive {
		e.postRoundRemaining--
		if e.postRoundRemaining <= 0 {
			e.advanceRound()
		}
		return
	}

	for chair := 0; chair < e.cfg.ChairCount; chair++ {
		if e.ticks[chair] <= 0 {
			continue
		}
		e.ticks[chair]--
		if e.ticks[chair] == 0 && len(e.queues[chair]) > 0 {
			e.autoPick(chair)
		}
		if e.state != StateRunning {
			return
		}
	}
}

// SetAutoPickHint records the card the seat wants auto-picked on timeout.
// The pack id must match the seat's head pack (or the public grid pack).
func (e *Engine) SetAutoPickHint(chair int, packID uint32, cardName string) error {
	if e.state != StateRunning {
		return ErrDraftNotRunning
	}
	if chair < 0 || chair >= e.cfg.ChairCount {
		return ErrInvalidChair
	}
	if e.isGridRound() {
		if !e.publicPresent || packID != e.publicPackID {
			return ErrWrongPack
		}
	} else {
		if len(e.queues[chair]) == 0 {
			return ErrNoSuchPack
		}
		if e.queues[chair][0].id != packID {
			return ErrWrongPack
		}
	}
	e.hints[chair] = cardName
	return nil
}

// Pick selects a card from the seat's head pack (or the public grid pack)
// and returns the card picked.
func (e *Engine) Pick(chair int, packID uint32, cardName string) (Card, error) {
	if e.state != StateRunning {
		return Card{}, ErrDraftNotRunning
	}
	if chair < 0 || chair >= e.cfg.ChairCount {
		return Card{}, ErrInvalidChair
	}

	if e.isGridRound() {
		return e.gridPick(chair, packID, cardName)
	}

	queue := e.queues[chair]
	if len(queue) == 0 {
		return Card{}, ErrNoSuchPack
	}
	head := queue[0]
	if head.id != packID {
		return Card{}, ErrWrongPack
	}
	idx := cardIndex(head.cards, cardName)
	if idx < 0 {
		return Card{}, ErrCardNotInPack
	}
	return e.takeCard(chair, idx, false), nil
}

// autoPick selects on behalf of a seat whose timer expired, preferring the
// seat's hint and falling back to the head pack's first card.
func (e *Engine) autoPick(chair int) {
	head := e.queues[chair][0]
	idx := 0
	if hint, ok := e.hints[chair]; ok {
		if i := cardIndex(head.cards, hint); i >= 0 {
			idx = i
		}
	}
	e.log.Debug("auto-picking for chair",
		zap.Int("chair", chair),
		zap.Uint32("pack", head.id),
		zap.String("card", head.cards[idx].Name))
	e.takeCard(chair, idx, true)
}

// takeCard removes head.cards[idx] from the seat's head pack, routes the
// residual pack, and fires all resulting callbacks.
func (e *Engine) takeCard(chair, idx int, auto bool) Card {
	head := e.queues[chair][0]
	card := head.cards[idx]
	head.cards = append(head.cards[:idx], head.cards[idx+1:]...)
	delete(e.hints, chair)

	// Pop the pack from this seat; sealed rounds keep a non-empty residual
	// at the head so the seat can drain it.
	round := e.cfg.Rounds[e.currentRound]
	keepResidual := round.Sealed != nil && len(head.cards) > 0
	if !keepResidual {
		e.queues[chair] = e.queues[chair][1:]
	}

	e.notifyCardSelected(chair, head.id, card, auto)

	if !keepResidual {
		e.notifyPackQueueChanged(chair, len(e.queues[chair]))

		// Pass a non-empty residual to the neighbor on booster rounds.
		passedToSelf := false
		if round.Booster != nil && len(head.cards) > 0 {
			neighbor := e.neighbor(chair, round.Booster.PassDirection)
			wasEmpty := len(e.queues[neighbor]) == 0
			e.appendPack(neighbor, head)
			passedToSelf = neighbor == chair && wasEmpty
		}

		if len(e.queues[chair]) == 0 {
			e.ticks[chair] = TimerDisabled
		} else if !passedToSelf {
			// passedToSelf means appendPack already announced this head.
			e.headArrived(chair)
		}
	}

	e.checkRoundComplete()
	return card
}

func (e *Engine) neighbor(chair int, dir PassDirection) int {
	n := e.cfg.ChairCount
	if dir == CounterClockwise {
		return (chair - 1 + n) % n
	}
	return (chair + 1) % n
}

// appendPack places an existing pack at the tail of a seat's queue.
func (e *Engine) appendPack(chair int, p *pack) {
	e.queues[chair] = append(e.queues[chair], p)
	e.notifyPackQueueChanged(chair, len(e.queues[chair]))
	if len(e.queues[chair]) == 1 {
		e.headArrived(chair)
	}
}

// newPack mints a pack with a fresh id and queues it on a seat.
func (e *Engine) newPack(chair int, cards []Card) {
	p := &pack{id: e.nextPackID, cards: cards, roundIndex: e.currentRound}
	e.nextPackID++
	e.appendPack(chair, p)
}

// headArrived resets the seat's selection timer and announces the pack now
// at the head of its queue.
func (e *Engine) headArrived(chair int) {
	head := e.queues[chair][0]

	e.ticks[chair] = TimerDisabled
	if round := e.cfg.Rounds[e.currentRound]; round.Booster != nil && round.Booster.SelectionTimeSecs > 0 {
		e.ticks[chair] = round.Booster.SelectionTimeSecs
	}

	cards := make([]Card, len(head.cards))
	copy(cards, head.cards)
	for _, o := range e.observers {
		o.NewPack(chair, head.id, cards)
	}
}

func (e *Engine) beginRound(round int) {
	e.currentRound = round
	e.postRoundActive = false
	e.publicPresent = false

	for _, o := range e.observers {
		o.RoundBegin(round)
	}

	r := e.cfg.Rounds[round]
	if r.Grid != nil {
		e.dealGridPack(r.Grid.DispenserIndex)
		return
	}

	e.dealing = true
	for _, d := range r.Dispensations() {
		for _, chair := range d.ChairIndices {
			cards, err := e.dispense(d)
			if err != nil {
				e.dealing = false
				e.fail(err)
				return
			}
			e.newPack(chair, cards)
			if e.state != StateRunning {
				e.dealing = false
				return
			}
		}
	}
	e.dealing = false
	e.checkRoundComplete()
}

func (e *Engine) dispense(d Dispensation) ([]Card, error) {
	dispenser := e.dispensers[d.DispenserIndex]
	var cards []Card
	var err error
	if d.DispenseAll {
		cards, err = dispenser.DispenseAll()
	} else {
		cards, err = dispenser.Dispense(d.Quantity)
	}
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: dispenser %d", ErrEmptyCardPool, d.DispenserIndex)
	}
	return cards, nil
}

func (e *Engine) dealGridPack(dispenserIndex int) {
	cards, err := e.dispensers[dispenserIndex].Dispense(gridPackSize)
	if err != nil {
		e.fail(err)
		return
	}
	if len(cards) == 0 {
		e.fail(fmt.Errorf("%w: dispenser %d", ErrEmptyCardPool, dispenserIndex))
		return
	}

	e.publicPresent = true
	e.publicPackID = e.nextPackID
	e.nextPackID++
	e.activeChair = 0
	e.selectedCount = 0
	e.publicStates = make([]PublicCardState, len(cards))
	for i, c := range cards {
		e.publicStates[i] = PublicCardState{Card: c, SelectedChairIndex: -1}
	}
	e.notifyPublicState()
}

func (e *Engine) gridPick(chair int, packID uint32, cardName string) (Card, error) {
	if !e.publicPresent || packID != e.publicPackID {
		return Card{}, ErrWrongPack
	}
	if chair != e.activeChair {
		return Card{}, ErrNotYourTurn
	}

	idx := -1
	for i, state := range e.publicStates {
		if state.Card.Name == cardName {
			if state.SelectedChairIndex < 0 {
				idx = i
				break
			}
			// Keep scanning: another copy of the name may be unselected.
			idx = -2
		}
	}
	switch idx {
	case -1:
		return Card{}, ErrCardNotInPack
	case -2:
		return Card{}, ErrCardAlreadySelected
	}

	e.selectedCount++
	e.publicStates[idx].SelectedChairIndex = chair
	e.publicStates[idx].SelectedOrder = e.selectedCount
	card := e.publicStates[idx].Card

	e.notifyCardSelected(chair, packID, card, false)

	e.activeChair = (e.activeChair + 1) % e.cfg.ChairCount
	e.notifyPublicState()

	e.checkRoundComplete()
	return card, nil
}

// checkRoundComplete starts the post-round timer (or advances immediately)
// once no cards remain in play for the current round.
func (e *Engine) checkRoundComplete() {
	if e.state != StateRunning || e.postRoundActive || e.dealing {
		return
	}

	if e.isGridRound() {
		if !e.publicPresent || e.selectedCount < len(e.publicStates) {
			return
		}
	} else {
		for _, q := range e.queues {
			if len(q) > 0 {
				return
			}
		}
	}

	if e.postRoundTicks > 0 {
		e.postRoundActive = true
		e.postRoundRemaining = e.postRoundTicks
		for _, o := range e.observers {
			o.PostRoundTimerStarted(e.currentRound, e.postRoundRemaining)
		}
		return
	}
	e.advanceRound()
}

func (e *Engine) advanceRound() {
	e.postRoundActive = false
	if e.currentRound+1 < len(e.cfg.Rounds) {
		e.beginRound(e.currentRound + 1)
		return
	}

	e.state = StateComplete
	e.publicPresent = false
	e.log.Info("draft complete")
	for _, o := range e.observers {
		o.DraftComplete()
	}
}

// fail moves the engine to its terminal error state.
func (e *Engine) fail(err error) {
	e.log.Error("draft error", zap.Error(err))
	e.state = StateError
	for _, o := range e.observers {
		o.DraftError(err)
	}
}

func (e *Engine) notifyCardSelected(chair int, packID uint32, card Card, auto bool) {
	for _, o := range e.observers {
		o.CardSelected(chair, packID, card, auto)
	}
}

func (e *Engine) notifyPackQueueChanged(chair, queued int) {
	for _, o := range e.observers {
		o.PackQueueChanged(chair, queued)
	}
}

func (e *Engine) notifyPublicState() {
	states := make([]PublicCardState, len(e.publicStates))
	copy(states, e.publicStates)
	for _, o := range e.observers {
		o.PublicStateChanged(e.publicPackID, states, e.activeChair)
	}
}

func cardIndex(cards []Card, name string) int {
	for i, c := range cards {
		if c.Name == name {
			return i
		}
	}
	return -1
}
