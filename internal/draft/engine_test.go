package draft

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

// scriptedDispenser returns predetermined packs so tests are deterministic.
type scriptedDispenser struct {
	packs [][]Card
	next  int
	err   error
}

func (d *scriptedDispenser) PoolSize() int { return PoolUnbounded }

func (d *scriptedDispenser) Dispense(n int) ([]Card, error) {
	if d.err != nil {
		return nil, d.err
	}
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = Card{SetCode: "TST", Name: fmt.Sprintf("gen%d-%d", d.next, i)}
	}
	d.next++
	return cards, nil
}

func (d *scriptedDispenser) DispenseAll() ([]Card, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.next >= len(d.packs) {
		return nil, errors.New("script exhausted")
	}
	pack := d.packs[d.next]
	d.next++
	out := make([]Card, len(pack))
	copy(out, pack)
	return out, nil
}

func makePack(prefix string, n int) []Card {
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = Card{SetCode: "TST", Name: fmt.Sprintf("%s-%d", prefix, i)}
	}
	return cards
}

// recorder captures observer callbacks in order.
type recorder struct {
	events    []string
	newPacks  map[int][]uint32 // chair -> pack ids seen at head
	selected  map[int][]Card
	autoCards []Card
	errs      []error
}

func newRecorder() *recorder {
	return &recorder{
		newPacks: map[int][]uint32{},
		selected: map[int][]Card{},
	}
}

func (r *recorder) NewPack(chair int, packID uint32, cards []Card) {
	r.events = append(r.events, fmt.Sprintf("newpack:%d:%d", chair, packID))
	r.newPacks[chair] = append(r.newPacks[chair], packID)
}

func (r *recorder) PackQueueChanged(chair, queued int) {
	r.events = append(r.events, fmt.Sprintf("queue:%d:%d", chair, queued))
}

func (r *recorder) CardSelected(chair int, packID uint32, card Card, auto bool) {
	r.events = append(r.events, fmt.Sprintf("selected:%d:%s:auto=%v", chair, card.Name, auto))
	r.selected[chair] = append(r.selected[chair], card)
	if auto {
		r.autoCards = append(r.autoCards, card)
	}
}

func (r *recorder) RoundBegin(round int) {
	r.events = append(r.events, fmt.Sprintf("round:%d", round))
}

func (r *recorder) PostRoundTimerStarted(round, ticks int) {
	r.events = append(r.events, fmt.Sprintf("postround:%d:%d", round, ticks))
}

func (r *recorder) PublicStateChanged(packID uint32, states []PublicCardState, activeChair int) {
	r.events = append(r.events, fmt.Sprintf("public:%d:active=%d", packID, activeChair))
}

func (r *recorder) DraftComplete() {
	r.events = append(r.events, "complete")
}

func (r *recorder) DraftError(err error) {
	r.events = append(r.events, "error")
	r.errs = append(r.errs, err)
}

func (r *recorder) contains(event string) bool {
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func boosterConfig(chairs, rounds, selectionTime int) Config {
	cfg := Config{ChairCount: chairs}
	cfg.Dispensers = []DispenserSpec{{BoosterSetCodes: []string{"TST"}}}
	for i := 0; i < rounds; i++ {
		dir := Clockwise
		if i%2 == 1 {
			dir = CounterClockwise
		}
		chairIndices := make([]int, chairs)
		for c := range chairIndices {
			chairIndices[c] = c
		}
		cfg.Rounds = append(cfg.Rounds, Round{Booster: &BoosterRound{
			SelectionTimeSecs: selectionTime,
			PassDirection:     dir,
			Dispensations: []Dispensation{{
				DispenserIndex: 0,
				ChairIndices:   chairIndices,
				DispenseAll:    true,
			}},
		}})
	}
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, disp Dispenser, opts ...Option) (*Engine, *recorder) {
	t.Helper()
	e, err := NewEngine(cfg, []Dispenser{disp}, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	rec := newRecorder()
	e.AddObserver(rec)
	return e, rec
}

func mustPickHead(t *testing.T, e *Engine, chair int) Card {
	t.Helper()
	packID, cards, ok := e.CurrentPack(chair)
	if !ok {
		t.Fatalf("chair %d has no current pack", chair)
	}
	card, err := e.Pick(chair, packID, cards[0].Name)
	if err != nil {
		t.Fatalf("pick chair %d pack %d: %v", chair, packID, err)
	}
	return card
}

func TestBoosterDraftRunsToCompletion(t *testing.T) {
	const chairs = 2
	const packSize = 3
	disp := &scriptedDispenser{packs: [][]Card{
		makePack("r0p0", packSize), makePack("r0p1", packSize),
		makePack("r1p0", packSize), makePack("r1p1", packSize),
	}}
	e, rec := newTestEngine(t, boosterConfig(chairs, 2, 0), disp, WithPostRoundTicks(0))

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !rec.contains("round:0") {
		t.Fatalf("expected round 0 begin, events: %v", rec.events)
	}

	for e.State() == StateRunning {
		picked := false
		for chair := 0; chair < chairs; chair++ {
			if _, _, ok := e.CurrentPack(chair); ok {
				mustPickHead(t, e, chair)
				picked = true
			}
		}
		if !picked {
			t.Fatalf("draft stalled; events: %v", rec.events)
		}
	}

	if e.State() != StateComplete {
		t.Fatalf("want complete, got %s", e.State())
	}
	if !rec.contains("round:1") || !rec.contains("complete") {
		t.Fatalf("missing round/complete events: %v", rec.events)
	}

	// Every seat picked every card of every round.
	for chair := 0; chair < chairs; chair++ {
		if got := len(rec.selected[chair]); got != 2*packSize {
			t.Fatalf("chair %d picked %d cards, want %d", chair, got, 2*packSize)
		}
	}
}

func TestPackIDsAreUnique(t *testing.T) {
	disp := &scriptedDispenser{packs: [][]Card{
		makePack("a", 2), makePack("b", 2), makePack("c", 2), makePack("d", 2),
	}}
	e, rec := newTestEngine(t, boosterConfig(2, 2, 0), disp, WithPostRoundTicks(0))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for e.State() == StateRunning {
		for chair := 0; chair < 2; chair++ {
			if _, _, ok := e.CurrentPack(chair); ok {
				mustPickHead(t, e, chair)
			}
		}
	}

	seen := map[uint32]bool{}
	for _, ids := range rec.newPacks {
		for _, id := range ids {
			seen[id] = true
		}
	}
	// 4 distinct packs were minted; passed packs re-announce the same id.
	if len(seen) != 4 {
		t.Fatalf("want 4 distinct pack ids, got %d (%v)", len(seen), rec.newPacks)
	}
}

func TestResidualPackPassesDirectionally(t *testing.T) {
	cases := []struct {
		name     string
		dir      PassDirection
		neighbor int
	}{
		{name: "clockwise", dir: Clockwise, neighbor: 1},
		{name: "counter-clockwise", dir: CounterClockwise, neighbor: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				ChairCount: 3,
				Dispensers: []DispenserSpec{{BoosterSetCodes: []string{"TST"}}},
				Rounds: []Round{{Booster: &BoosterRound{
					SelectionTimeSecs: 0,
					PassDirection:     tc.dir,
					Dispensations: []Dispensation{{
						DispenserIndex: 0,
						ChairIndices:   []int{0},
						DispenseAll:    true,
					}},
				}}},
			}
			disp := &scriptedDispenser{packs: [][]Card{makePack("p", 2)}}
			e, _ := newTestEngine(t, cfg, disp, WithPostRoundTicks(0))
			if err := e.Start(); err != nil {
				t.Fatalf("start: %v", err)
			}

			packID, _, _ := e.CurrentPack(0)
			mustPickHead(t, e, 0)

			gotID, cards, ok := e.CurrentPack(tc.neighbor)
			if !ok {
				t.Fatalf("residual did not reach chair %d", tc.neighbor)
			}
			if gotID != packID {
				t.Fatalf("residual pack id changed: %d != %d", gotID, packID)
			}
			if len(cards) != 1 {
				t.Fatalf("residual should hold 1 card, got %d", len(cards))
			}
		})
	}
}

func TestPickErrors(t *testing.T) {
	disp := &scriptedDispenser{packs: [][]Card{makePack("p", 3), makePack("q", 3)}}
	e, _ := newTestEngine(t, boosterConfig(2, 1, 0), disp, WithPostRoundTicks(0))

	if _, err := e.Pick(0, 1, "p-0"); !errors.Is(err, ErrDraftNotRunning) {
		t.Fatalf("want ErrDraftNotRunning, got %v", err)
	}

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	cases := []struct {
		name    string
		chair   int
		packID  uint32
		card    string
		wantErr error
	}{
		{name: "wrong pack id", chair: 0, packID: 999, card: "p-0", wantErr: ErrWrongPack},
		{name: "card not in pack", chair: 0, packID: 1, card: "nope", wantErr: ErrCardNotInPack},
		{name: "bad chair", chair: 7, packID: 1, card: "p-0", wantErr: ErrInvalidChair},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Pick(tc.chair, tc.packID, tc.card)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}

	// Errors left the draft running with the pack intact.
	if e.State() != StateRunning {
		t.Fatalf("errors must not change state, got %s", e.State())
	}
	if _, cards, ok := e.CurrentPack(0); !ok || len(cards) != 3 {
		t.Fatalf("pack should be untouched")
	}
}

func TestAutoPickOnTimeout(t *testing.T) {
	disp := &scriptedDispenser{packs: [][]Card{makePack("p", 15), makePack("q", 15)}}
	e, rec := newTestEngine(t, boosterConfig(2, 1, 2), disp, WithPostRoundTicks(0))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if got := e.TicksRemaining(0); got != 2 {
		t.Fatalf("want 2 ticks, got %d", got)
	}

	e.Tick()
	if len(rec.autoCards) != 0 {
		t.Fatalf("auto-pick fired early")
	}
	e.Tick()

	// Both seats timed out and auto-picked their pack's first card.
	if len(rec.autoCards) != 2 {
		t.Fatalf("want 2 auto-picks, got %d", len(rec.autoCards))
	}
	if rec.autoCards[0].Name != "p-0" {
		t.Fatalf("auto-pick should take first card, got %s", rec.autoCards[0].Name)
	}

	// Residual 14-card packs moved to the neighbors.
	_, cards, ok := e.CurrentPack(1)
	if !ok || len(cards) != 14 {
		t.Fatalf("expected 14-card residual at chair 1, got %v ok=%v", len(cards), ok)
	}
}

func TestAutoPickHonorsHint(t *testing.T) {
	disp := &scriptedDispenser{packs: [][]Card{makePack("p", 5), makePack("q", 5)}}
	e, rec := newTestEngine(t, boosterConfig(2, 1, 1), disp, WithPostRoundTicks(0))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	packID, _, _ := e.CurrentPack(0)
	if err := e.SetAutoPickHint(0, packID, "p-3"); err != nil {
		t.Fatalf("hint: %v", err)
	}
	e.Tick()

	if len(rec.selected[0]) != 1 || rec.selected[0][0].Name != "p-3" {
		t.Fatalf("hint not honored: %v", rec.selected[0])
	}
}

func TestSelectionTimeZeroDisablesAutoPick(t *testing.T) {
	disp := &scriptedDispenser{packs: [][]Card{makePack("p", 3), makePack("q", 3)}}
	e, rec := newTestEngine(t, boosterConfig(2, 1, 0), disp, WithPostRoundTicks(0))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if got := e.TicksRemaining(0); got != TimerDisabled {
		t.Fatalf("want disabled timer, got %d", got)
	}
	for i := 0; i < 100; i++ {
		e.Tick()
	}
	if len(rec.autoCards) != 0 {
		t.Fatalf("auto-pick must be disabled, got %v", rec.autoCards)
	}
}

func TestPostRoundTimerDelaysNextRound(t *testing.T) {
	disp := &scriptedDispenser{packs: [][]Card{
		makePack("a", 1), makePack("b", 1), makePack("c", 1), makePack("d", 1),
	}}
	e, rec := newTestEngine(t, boosterConfig(2, 2, 0), disp, WithPostRoundTicks(3))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	mustPickHead(t, e, 0)
	mustPickHead(t, e, 1)

	if !e.PostRoundActive() {
		t.Fatalf("post-round timer should be active")
	}
	if !rec.contains("postround:0:3") {
		t.Fatalf("missing post-round event: %v", rec.events)
	}
	if rec.contains("round:1") {
		t.Fatalf("round 1 started before grace interval")
	}

	e.Tick()
	e.Tick()
	if rec.contains("round:1") {
		t.Fatalf("round 1 started early")
	}
	e.Tick()
	if !rec.contains("round:1") {
		t.Fatalf("round 1 never started: %v", rec.events)
	}
}

func TestSealedRoundDrainsWithoutPassing(t *testing.T) {
	cfg := Config{
		ChairCount: 2,
		Dispensers: []DispenserSpec{{BoosterSetCodes: []string{"TST"}}},
		Rounds: []Round{{Sealed: &SealedRound{
			Dispensations: []Dispensation{{
				DispenserIndex: 0,
				ChairIndices:   []int{0, 1},
				DispenseAll:    true,
			}},
		}}},
	}
	disp := &scriptedDispenser{packs: [][]Card{makePack("p", 3), makePack("q", 3)}}
	e, _ := newTestEngine(t, cfg, disp, WithPostRoundTicks(0))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The seat drains its own pack; nothing ever reaches the neighbor's
	// queue beyond its own dispensed pack.
	id0, _, _ := e.CurrentPack(0)
	mustPickHead(t, e, 0)
	nextID, cards, ok := e.CurrentPack(0)
	if !ok || nextID != id0 || len(cards) != 2 {
		t.Fatalf("sealed residual should stay put: ok=%v id=%d len=%d", ok, nextID, len(cards))
	}
	if e.TicksRemaining(0) != TimerDisabled {
		t.Fatalf("sealed rounds have no selection timer")
	}

	for e.State() == StateRunning {
		for chair := 0; chair < 2; chair++ {
			if _, _, ok := e.CurrentPack(chair); ok {
				mustPickHead(t, e, chair)
			}
		}
	}
	if e.State() != StateComplete {
		t.Fatalf("want complete, got %s", e.State())
	}
}

func TestGridRoundTurnRotation(t *testing.T) {
	cfg := Config{
		ChairCount: 2,
		Dispensers: []DispenserSpec{{BoosterSetCodes: []string{"TST"}}},
		Rounds:     []Round{{Grid: &GridRound{DispenserIndex: 0}}},
	}
	disp := &scriptedDispenser{}
	e, rec := newTestEngine(t, cfg, disp, WithPostRoundTicks(0))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	packID, states, active, ok := e.PublicState()
	if !ok || len(states) != 9 || active != 0 {
		t.Fatalf("bad initial public state: ok=%v len=%d active=%d", ok, len(states), active)
	}

	// Wrong-turn pick is refused.
	if _, err := e.Pick(1, packID, states[0].Card.Name); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn, got %v", err)
	}

	// Chairs alternate; selection order is monotone.
	for i := 0; i < 9; i++ {
		_, states, active, _ := e.PublicState()
		var card Card
		found := false
		for _, st := range states {
			if st.SelectedChairIndex < 0 {
				card = st.Card
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("no unselected card left at pick %d", i)
		}
		if _, err := e.Pick(active, packID, card.Name); err != nil {
			t.Fatalf("grid pick %d: %v", i, err)
		}
	}

	if e.State() != StateComplete {
		t.Fatalf("grid draft should complete, got %s", e.State())
	}
	if !rec.contains("complete") {
		t.Fatalf("missing complete event: %v", rec.events)
	}

	// Once the draft is complete, further picks are refused.
	if _, err := e.Pick(0, packID, "gen0-0"); !errors.Is(err, ErrDraftNotRunning) {
		t.Fatalf("want ErrDraftNotRunning after completion, got %v", err)
	}
}

func TestGridDoublePickRejected(t *testing.T) {
	cfg := Config{
		ChairCount: 2,
		Dispensers: []DispenserSpec{{BoosterSetCodes: []string{"TST"}}},
		Rounds:     []Round{{Grid: &GridRound{DispenserIndex: 0}}},
	}
	e, _ := newTestEngine(t, cfg, &scriptedDispenser{}, WithPostRoundTicks(0))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	packID, states, _, _ := e.PublicState()
	name := states[0].Card.Name
	if _, err := e.Pick(0, packID, name); err != nil {
		t.Fatalf("first pick: %v", err)
	}
	if _, err := e.Pick(1, packID, name); !errors.Is(err, ErrCardAlreadySelected) {
		t.Fatalf("want ErrCardAlreadySelected, got %v", err)
	}
}

func TestDispenseFailureIsFatal(t *testing.T) {
	disp := &scriptedDispenser{err: errors.New("db exploded")}
	e, rec := newTestEngine(t, boosterConfig(2, 1, 0), disp)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if e.State() != StateError {
		t.Fatalf("want error state, got %s", e.State())
	}
	if len(rec.errs) != 1 {
		t.Fatalf("want 1 draft error, got %d", len(rec.errs))
	}
	if _, err := e.Pick(0, 1, "x"); !errors.Is(err, ErrDraftNotRunning) {
		t.Fatalf("terminal state must refuse picks, got %v", err)
	}
}

func TestStartTwiceFails(t *testing.T) {
	disp := &scriptedDispenser{packs: [][]Card{makePack("p", 1), makePack("q", 1)}}
	e, _ := newTestEngine(t, boosterConfig(2, 1, 0), disp)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("want ErrAlreadyStarted, got %v", err)
	}
}
