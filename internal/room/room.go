package room

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/draftroom/draftroom/internal/bot"
	"github.com/draftroom/draftroom/internal/draft"
	"github.com/draftroom/draftroom/internal/protocol"
)

const (
	// CreatedRoomExpiration tears down a room nobody ever joined.
	CreatedRoomExpiration = 10 * time.Second

	// AbandonedRoomExpiration tears down a mid-draft room once its last
	// connection has gone.
	AbandonedRoomExpiration = 120 * time.Second
)

// ChairState tracks one seat's lifecycle.
type ChairState int

const (
	ChairEmpty ChairState = iota
	ChairStandby
	ChairReady
	ChairActive
	ChairDeparted
)

func (s ChairState) wire() string {
	switch s {
	case ChairStandby:
		return protocol.ChairStandby
	case ChairReady:
		return protocol.ChairReady
	case ChairActive:
		return protocol.ChairActive
	case ChairDeparted:
		return protocol.ChairDeparted
	default:
		return ""
	}
}

// Events is how a room reports lifecycle changes to its hub. Calls arrive
// from the room goroutine and must not block.
type Events interface {
	PlayerCountChanged(roomID, playerCount int)
	RoomExpired(roomID int)
	RoomError(roomID int)
}

// Msg is a message into the room actor.
type Msg interface{ isRoomMsg() }

// Join asks to seat (or re-seat) a logged-in user.
type Join struct {
	Conn     Conn
	Name     string
	Password string
}

// Leave detaches a connection: an explicit depart or a transport loss.
type Leave struct{ Conn Conn }

// ClientMsg is a room-scoped message from a seated client.
type ClientMsg struct {
	Conn Conn
	Env  protocol.Envelope
}

// Shutdown stops the room goroutine.
type Shutdown struct{}

// GetView reflects internal state without data races; test-only.
type GetView struct{ Reply chan View }

func (Join) isRoomMsg()      {}
func (Leave) isRoomMsg()     {}
func (ClientMsg) isRoomMsg() {}
func (Shutdown) isRoomMsg()  {}
func (GetView) isRoomMsg()   {}

// View is a snapshot of room internals for tests.
type View struct {
	ChairStates   []ChairState
	Names         []string
	DraftState    draft.State
	CurrentRound  int
	PlayerCount   int
	ConnCount     int
	DraftComplete bool
}

type settings struct {
	createdExpiration   time.Duration
	abandonedExpiration time.Duration
	tickInterval        time.Duration
	engineOpts          []draft.Option
	botStrategy         func(chair int) bot.Strategy
}

type Option func(*settings)

func WithExpirations(created, abandoned time.Duration) Option {
	return func(s *settings) {
		s.createdExpiration = created
		s.abandonedExpiration = abandoned
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(s *settings) { s.tickInterval = d }
}

func WithEngineOptions(opts ...draft.Option) Option {
	return func(s *settings) { s.engineOpts = append(s.engineOpts, opts...) }
}

func WithBotStrategy(f func(chair int) bot.Strategy) Option {
	return func(s *settings) { s.botStrategy = f }
}

// Room owns one drafting session: the engine, the seat roster, bots, the
// expiration timer and all room-scoped broadcasts. All state is confined to
// the room goroutine.
type Room struct {
	id     int
	cfg    protocol.RoomConfig
	pwHash []byte
	events Events
	log    *zap.Logger
	opts   settings

	engine      *draft.Engine
	players     []Player
	chairStates []ChairState
	humans      []*HumanPlayer
	conns       map[Conn]*HumanPlayer

	inbox    chan Msg
	ctx      context.Context
	cancel   context.CancelFunc
	ticker   *time.Ticker
	tickC    <-chan time.Time
	expTimer *time.Timer
	lastTick time.Time

	draftComplete   bool
	dirtyDraftState bool
}

// New builds a room for a validated config and starts its goroutine. The
// dispenser vector comes from the hub, which owns per-room randomness.
func New(parent context.Context, id int, cfg protocol.RoomConfig, dispensers []draft.Dispenser, events Events, log *zap.Logger, opts ...Option) (*Room, error) {
	s := settings{
		createdExpiration:   CreatedRoomExpiration,
		abandonedExpiration: AbandonedRoomExpiration,
		tickInterval:        time.Second,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.botStrategy == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		s.botStrategy = func(int) bot.Strategy { return bot.NewRandomStrategy(rng) }
	}

	engine, err := draft.NewEngine(cfg.Draft, dispensers, log.Named("draft"), s.engineOpts...)
	if err != nil {
		return nil, err
	}

	var pwHash []byte
	if cfg.Password != "" {
		pwHash, err = bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		cfg.Password = ""
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:          id,
		cfg:         cfg,
		pwHash:      pwHash,
		events:      events,
		log:         log,
		opts:        s,
		engine:      engine,
		players:     make([]Player, cfg.Draft.ChairCount),
		chairStates: make([]ChairState, cfg.Draft.ChairCount),
		conns:       make(map[Conn]*HumanPlayer),
		inbox:       make(chan Msg, 64),
		ctx:         ctx,
		cancel:      cancel,
	}
	engine.AddObserver(r)
	r.seatBots()

	// The creating client normally joins immediately; if it never does the
	// room cleans itself up.
	r.expTimer = time.NewTimer(s.createdExpiration)

	go r.loop()
	return r, nil
}

func (r *Room) ID() int           { return r.id }
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// seatBots places bots in every other chair (then wraps to the odd chairs)
// so human seats stay interleaved.
func (r *Room) seatBots() {
	botLog := r.log.Named("bot")
	chair := 0
	for i := 0; i < r.cfg.BotCount && i < r.cfg.Draft.ChairCount; i++ {
		b := NewBotPlayer(chair, r.opts.botStrategy(chair), r.engine, botLog)
		r.players[chair] = b
		r.chairStates[chair] = ChairReady
		r.engine.AddObserver(b)
		r.log.Debug("seated bot", zap.Int("chair", chair))

		chair += 2
		if chair >= r.cfg.Draft.ChairCount {
			chair = 1
		}
	}
}

func (r *Room) loop() {
	if r.cfg.BotCount > 0 {
		r.events.PlayerCountChanged(r.id, r.playerCount())
	}

	for {
		select {
		case <-r.ctx.Done():
			r.stopTimers()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg.Conn, msg.Name, msg.Password)
			case Leave:
				r.handleLeave(msg.Conn)
			case ClientMsg:
				r.handleClientMsg(msg.Conn, msg.Env)
			case GetView:
				msg.Reply <- r.view()
			case Shutdown:
				r.stopTimers()
				r.cancel()
				return
			}
			r.flushDraftState()

		case <-r.tickC:
			r.handleTick()
			r.flushDraftState()

		case <-r.expTimer.C:
			if len(r.conns) == 0 {
				r.log.Info("room expired", zap.Int("room_id", r.id))
				r.events.RoomExpired(r.id)
			}
		}
	}
}

func (r *Room) stopTimers() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	r.expTimer.Stop()
}

func (r *Room) view() View {
	states := make([]ChairState, len(r.chairStates))
	copy(states, r.chairStates)
	names := make([]string, len(r.players))
	for i, p := range r.players {
		if p != nil {
			names[i] = p.Name()
		}
	}
	return View{
		ChairStates:   states,
		Names:         names,
		DraftState:    r.engine.State(),
		CurrentRound:  r.engine.CurrentRound(),
		PlayerCount:   r.playerCount(),
		ConnCount:     len(r.conns),
		DraftComplete: r.draftComplete,
	}
}

func (r *Room) playerCount() int {
	n := 0
	for _, p := range r.players {
		if p != nil {
			n++
		}
	}
	return n
}

func (r *Room) humanByName(name string) *HumanPlayer {
	for _, h := range r.humans {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

func (r *Room) handleJoin(conn Conn, name, password string) {
	if human := r.humanByName(name); human != nil {
		r.rejoin(conn, human)
		return
	}

	if len(r.pwHash) > 0 {
		if bcrypt.CompareHashAndPassword(r.pwHash, []byte(password)) != nil {
			r.sendJoinFailure(conn, protocol.JoinFailureInvalidPassword)
			return
		}
	}

	chair := -1
	for i, p := range r.players {
		if p == nil {
			chair = i
			break
		}
	}
	if chair == -1 {
		r.sendJoinFailure(conn, protocol.JoinFailureRoomFull)
		return
	}

	human := NewHumanPlayer(name, chair, r.log.Named("human"))
	human.Attach(conn)
	r.conns[conn] = human
	r.humans = append(r.humans, human)
	r.players[chair] = human
	r.chairStates[chair] = ChairStandby
	r.engine.AddObserver(human)
	r.log.Debug("joined human",
		zap.String("name", name),
		zap.Int("chair", chair),
		zap.String("remote", conn.RemoteAddr()))

	// With at least one connection the room must not expire.
	r.stopExpiration()

	conn.Send(protocol.NewEnvelope(protocol.TypeJoinRoomSuccessRspInd, protocol.JoinRoomSuccessRspInd{
		RoomID:     r.id,
		Rejoin:     false,
		ChairIndex: chair,
		RoomConfig: r.cfg,
	}))

	r.events.PlayerCountChanged(r.id, r.playerCount())
	r.broadcastOccupants()
}

func (r *Room) rejoin(conn Conn, human *HumanPlayer) {
	chair := human.ChairIndex()
	if r.chairStates[chair] != ChairDeparted {
		r.log.Warn("rejoin refused: player not departed",
			zap.String("name", human.Name()), zap.Int("chair", chair))
		r.sendJoinFailure(conn, protocol.JoinFailureNotDeparted)
		return
	}

	human.Attach(conn)
	r.conns[conn] = human
	r.chairStates[chair] = ChairActive
	r.stopExpiration()
	r.log.Info("rejoined human", zap.String("name", human.Name()), zap.Int("chair", chair))

	conn.Send(protocol.NewEnvelope(protocol.TypeJoinRoomSuccessRspInd, protocol.JoinRoomSuccessRspInd{
		RoomID:     r.id,
		Rejoin:     true,
		ChairIndex: chair,
		RoomConfig: r.cfg,
	}))

	r.events.PlayerCountChanged(r.id, r.playerCount())
	r.broadcastOccupants()

	// Replay full client state: inventory, current pack, then the stage.
	human.SendInventory()
	if r.engine.State() == draft.StateRunning {
		if packID, cards, ok := r.engine.CurrentPack(chair); ok {
			human.NewPack(chair, packID, cards)
		}
		r.sendPublicState(conn)
	}
	conn.Send(protocol.NewEnvelope(protocol.TypeRoomStageInd, r.stageInd()))
	if r.engine.State() == draft.StateComplete {
		conn.Send(protocol.NewEnvelope(protocol.TypeRoomChairsDeckInfoInd, r.deckInfo(r.humans...)))
	}
}

func (r *Room) handleLeave(conn Conn) {
	human, ok := r.conns[conn]
	if !ok {
		r.log.Warn("leave from unknown connection", zap.String("remote", conn.RemoteAddr()))
		return
	}

	human.Detach()
	delete(r.conns, conn)
	chair := human.ChairIndex()

	if r.chairStates[chair] == ChairActive {
		// Keep the human and its inventory for a possible rejoin.
		r.chairStates[chair] = ChairDeparted
		if len(r.conns) == 0 {
			r.log.Debug("room abandoned, starting expiration timer", zap.Int("room_id", r.id))
			r.resetExpiration(r.opts.abandonedExpiration)
		}
	} else {
		r.engine.RemoveObserver(human)
		r.players[chair] = nil
		r.chairStates[chair] = ChairEmpty
		for i, h := range r.humans {
			if h == human {
				r.humans = append(r.humans[:i], r.humans[i+1:]...)
				break
			}
		}
		if len(r.conns) == 0 {
			r.events.RoomExpired(r.id)
			return
		}
	}

	r.events.PlayerCountChanged(r.id, r.playerCount())
	r.broadcastOccupants()
}

func (r *Room) handleClientMsg(conn Conn, env protocol.Envelope) {
	human, ok := r.conns[conn]
	if !ok {
		r.log.Warn("message from connection not in room", zap.String("type", string(env.Type)))
		return
	}

	switch env.Type {
	case protocol.TypePlayerReadyInd:
		var ind protocol.PlayerReadyInd
		if err := env.Decode(&ind); err != nil {
			r.log.Warn("bad ready ind", zap.Error(err))
			return
		}
		r.handleReady(human, ind.Ready)

	case protocol.TypePlayerCardSelectionReq:
		var req protocol.PlayerCardSelectionReq
		if err := env.Decode(&req); err != nil {
			r.log.Warn("bad card selection req", zap.Error(err))
			return
		}
		r.handleCardSelection(human, req)

	case protocol.TypePlayerAutoCardSelReq:
		var req protocol.PlayerAutoCardSelectionReq
		if err := env.Decode(&req); err != nil {
			r.log.Warn("bad auto card selection req", zap.Error(err))
			return
		}
		if err := r.engine.SetAutoPickHint(human.ChairIndex(), req.PackID, req.Card.Name); err != nil {
			r.log.Debug("auto-pick hint rejected", zap.Error(err))
		}

	case protocol.TypePlayerInventoryUpdateInd:
		var upd protocol.PlayerInventoryUpdateInd
		if err := env.Decode(&upd); err != nil {
			r.log.Warn("bad inventory update", zap.Error(err))
			return
		}
		r.handleInventoryUpdate(human, upd)

	case protocol.TypeChatMessageInd:
		var chat protocol.ChatMessageInd
		if err := env.Decode(&chat); err != nil {
			r.log.Warn("bad chat message", zap.Error(err))
			return
		}
		r.broadcast(protocol.NewEnvelope(protocol.TypeChatMessageDeliveryInd, protocol.ChatMessageDeliveryInd{
			Sender: human.Name(),
			Scope:  protocol.ChatScopeRoom,
			Text:   chat.Text,
		}))

	default:
		r.log.Warn("unhandled room message", zap.String("type", string(env.Type)))
	}
}

func (r *Room) handleReady(human *HumanPlayer, ready bool) {
	chair := human.ChairIndex()
	state := r.chairStates[chair]
	allReady := false

	switch {
	case state == ChairReady && !ready:
		r.chairStates[chair] = ChairStandby
		human.SetReady(false)

	case state == ChairStandby && ready:
		r.chairStates[chair] = ChairReady
		human.SetReady(true)

		allReady = true
		for _, s := range r.chairStates {
			if s != ChairReady {
				allReady = false
				break
			}
		}
		if allReady {
			for i := range r.chairStates {
				r.chairStates[i] = ChairActive
			}
		}
	}

	r.broadcastOccupants()

	if allReady {
		r.log.Info("all chairs ready, starting draft", zap.Int("room_id", r.id))
		r.ticker = time.NewTicker(r.opts.tickInterval)
		r.tickC = r.ticker.C
		r.lastTick = time.Now()
		if err := r.engine.Start(); err != nil {
			r.log.Error("draft start failed", zap.Error(err))
		}
	}
}

func (r *Room) handleCardSelection(human *HumanPlayer, req protocol.PlayerCardSelectionReq) {
	human.SetPickZone(req.Zone)
	card, err := r.engine.Pick(human.ChairIndex(), req.PackID, req.Card.Name)
	if err != nil {
		r.log.Debug("pick rejected",
			zap.Int("chair", human.ChairIndex()),
			zap.Uint32("pack", req.PackID),
			zap.Error(err))
		card = req.Card
	}
	human.Send(protocol.NewEnvelope(protocol.TypePlayerCardSelectionRsp, protocol.PlayerCardSelectionRsp{
		Result: err == nil,
		PackID: req.PackID,
		Card:   card,
	}))
}

func (r *Room) handleInventoryUpdate(human *HumanPlayer, upd protocol.PlayerInventoryUpdateInd) {
	for _, move := range upd.Moves {
		if !human.Inventory().Move(move.Card, move.ZoneFrom, move.ZoneTo) {
			r.log.Warn("inventory move for absent card",
				zap.String("name", human.Name()),
				zap.String("card", move.Card.Name))
		}
	}
	for _, land := range upd.BasicLands {
		human.Inventory().SetBasicLand(land.Zone, land.Land, land.Quantity)
	}

	// Hashes stay private until the draft is over.
	if r.draftComplete {
		r.broadcast(protocol.NewEnvelope(protocol.TypeRoomChairsDeckInfoInd, r.deckInfo(human)))
	}
}

func (r *Room) handleTick() {
	r.lastTick = time.Now()
	r.engine.Tick()
	if r.engine.State() == draft.StateRunning && r.engine.IsBoosterRound() {
		r.dirtyDraftState = true
	}
}

// millisUntilNextSec lets clients interpolate between draft ticks.
func (r *Room) millisUntilNextSec() int {
	if r.ticker == nil {
		return 0
	}
	ms := int(r.opts.tickInterval.Milliseconds()) - int(time.Since(r.lastTick).Milliseconds())
	if ms < 0 {
		ms = 0
	}
	return ms
}

func (r *Room) postRoundMillis() int {
	if !r.engine.PostRoundActive() {
		return 0
	}
	tickMs := int(r.opts.tickInterval.Milliseconds())
	ms := r.engine.PostRoundTicksRemaining()*tickMs - (tickMs - r.millisUntilNextSec())
	if ms < 0 {
		ms = 0
	}
	return ms
}

func (r *Room) stageInd() protocol.RoomStageInd {
	switch r.engine.State() {
	case draft.StateNew:
		return protocol.RoomStageInd{Stage: protocol.StageNew}
	case draft.StateRunning:
		info := &protocol.RoundInfo{Round: r.engine.CurrentRound()}
		if r.engine.PostRoundActive() {
			info.PostRoundTimeRemainingMillis = r.postRoundMillis()
		}
		return protocol.RoomStageInd{Stage: protocol.StageRunning, RoundInfo: info}
	default:
		return protocol.RoomStageInd{Stage: protocol.StageComplete}
	}
}

func (r *Room) deckInfo(humans ...*HumanPlayer) protocol.RoomChairsDeckInfoInd {
	ind := protocol.RoomChairsDeckInfoInd{}
	for _, h := range humans {
		ind.Chairs = append(ind.Chairs, protocol.ChairDeckInfo{
			ChairIndex: h.ChairIndex(),
			DeckHash:   h.DeckHash(),
		})
	}
	return ind
}

func (r *Room) sendJoinFailure(conn Conn, result string) {
	conn.Send(protocol.NewEnvelope(protocol.TypeJoinRoomFailureRsp, protocol.JoinRoomFailureRsp{
		Result: result,
		RoomID: r.id,
	}))
}

func (r *Room) broadcast(env protocol.Envelope) {
	for conn := range r.conns {
		conn.Send(env)
	}
}

func (r *Room) broadcastOccupants() {
	ind := protocol.RoomOccupantsInfoInd{RoomID: r.id}
	for i, p := range r.players {
		if p == nil {
			continue
		}
		ind.Players = append(ind.Players, protocol.OccupantInfo{
			ChairIndex: i,
			Name:       p.Name(),
			IsBot:      p.IsBot(),
			State:      r.chairStates[i].wire(),
		})
	}
	r.broadcast(protocol.NewEnvelope(protocol.TypeRoomOccupantsInfoInd, ind))
}

// flushDraftState coalesces queue churn into at most one
// BoosterDraftStateInd per handled event or tick.
func (r *Room) flushDraftState() {
	if !r.dirtyDraftState {
		return
	}
	r.dirtyDraftState = false

	if r.engine.State() != draft.StateRunning || !r.engine.IsBoosterRound() {
		return
	}

	ind := protocol.BoosterDraftStateInd{MillisUntilNextSec: r.millisUntilNextSec()}
	for i := 0; i < r.engine.ChairCount(); i++ {
		ticks := r.engine.TicksRemaining(i)
		if ticks < 0 {
			ticks = 0
		}
		ind.Chairs = append(ind.Chairs, protocol.ChairDraftState{
			ChairIndex:    i,
			QueuedPacks:   r.engine.PackQueueSize(i),
			TimeRemaining: ticks,
		})
	}
	r.broadcast(protocol.NewEnvelope(protocol.TypeBoosterDraftStateInd, ind))
}

func (r *Room) sendPublicState(conns ...Conn) {
	packID, states, active, ok := r.engine.PublicState()
	if !ok {
		return
	}

	ind := protocol.PublicStateInd{
		PackID:             packID,
		ActiveChairIndex:   active,
		MillisUntilNextSec: r.millisUntilNextSec(),
	}
	if ticks := r.engine.TicksRemaining(active); ticks > 0 {
		ind.TimeRemainingSecs = ticks
	}
	for _, st := range states {
		ind.CardStates = append(ind.CardStates, protocol.PublicCardState{
			Card:               st.Card,
			SelectedChairIndex: st.SelectedChairIndex,
			SelectedOrder:      st.SelectedOrder,
		})
	}

	env := protocol.NewEnvelope(protocol.TypePublicStateInd, ind)
	if len(conns) == 0 {
		r.broadcast(env)
		return
	}
	for _, conn := range conns {
		conn.Send(env)
	}
}

func (r *Room) stopExpiration() {
	if !r.expTimer.Stop() {
		select {
		case <-r.expTimer.C:
		default:
		}
	}
}

func (r *Room) resetExpiration(d time.Duration) {
	r.stopExpiration()
	r.expTimer.Reset(d)
}

// draft.Observer

func (r *Room) NewPack(chair int, packID uint32, cards []draft.Card) {
	r.dirtyDraftState = true
}

func (r *Room) PackQueueChanged(chair, queued int) {
	r.dirtyDraftState = true
}

func (r *Room) CardSelected(chair int, packID uint32, card draft.Card, auto bool) {
	r.dirtyDraftState = true
}

func (r *Room) RoundBegin(round int) {
	r.broadcast(protocol.NewEnvelope(protocol.TypeRoomStageInd, protocol.RoomStageInd{
		Stage:     protocol.StageRunning,
		RoundInfo: &protocol.RoundInfo{Round: round},
	}))
}

func (r *Room) PostRoundTimerStarted(round, ticks int) {
	r.broadcast(protocol.NewEnvelope(protocol.TypeRoomStageInd, protocol.RoomStageInd{
		Stage: protocol.StageRunning,
		RoundInfo: &protocol.RoundInfo{
			Round:                        round,
			PostRoundTimeRemainingMillis: r.postRoundMillis(),
		},
	}))
}

func (r *Room) PublicStateChanged(packID uint32, states []draft.PublicCardState, activeChair int) {
	r.sendPublicState()
}

func (r *Room) DraftComplete() {
	r.draftComplete = true
	if r.ticker != nil {
		r.ticker.Stop()
		r.tickC = nil
	}

	r.broadcast(protocol.NewEnvelope(protocol.TypeRoomStageInd, protocol.RoomStageInd{
		Stage: protocol.StageComplete,
	}))
	if len(r.humans) > 0 {
		r.broadcast(protocol.NewEnvelope(protocol.TypeRoomChairsDeckInfoInd, r.deckInfo(r.humans...)))
	}
}

func (r *Room) DraftError(err error) {
	r.broadcast(protocol.NewEnvelope(protocol.TypeRoomErrorInd, protocol.RoomErrorInd{}))
	r.events.RoomError(r.id)
}
