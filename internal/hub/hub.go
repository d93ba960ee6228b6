package hub

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/carddb"
	"github.com/draftroom/draftroom/internal/draft"
	"github.com/draftroom/draftroom/internal/protocol"
	"github.com/draftroom/draftroom/internal/room"
	"github.com/draftroom/draftroom/internal/validate"
)

// directoryFlushInterval coalesces room/user directory diffs.
const directoryFlushInterval = time.Second

const maxNameLength = 32

// Msg is a message into the hub actor.
type Msg interface{ isHubMsg() }

// Connected announces a fresh transport connection; the hub greets it.
type Connected struct{ Conn room.Conn }

// Disconnected announces a lost connection.
type Disconnected struct{ Conn room.Conn }

// Inbound is a decoded client message.
type Inbound struct {
	Conn room.Conn
	Env  protocol.Envelope
}

// UpdateNotices replaces the announcements/alerts texts and rebroadcasts
// them; main sends this on SIGHUP.
type UpdateNotices struct {
	Announcements string
	Alerts        string
}

// Shutdown stops the hub and all rooms.
type Shutdown struct{}

// GetView reflects internal state without data races; used by tests and the
// HTTP status endpoint.
type GetView struct{ Reply chan View }

type playerCountChanged struct{ roomID, count int }
type roomExpired struct{ roomID int }
type roomError struct{ roomID int }

func (Connected) isHubMsg()          {}
func (Disconnected) isHubMsg()       {}
func (Inbound) isHubMsg()            {}
func (UpdateNotices) isHubMsg()      {}
func (Shutdown) isHubMsg()           {}
func (GetView) isHubMsg()            {}
func (playerCountChanged) isHubMsg() {}
func (roomExpired) isHubMsg()        {}
func (roomError) isHubMsg()          {}

// View is a snapshot of hub internals for tests and status reporting.
type View struct {
	Users     []string
	RoomIDs   []int
	RoomInfos map[int]protocol.RoomInfo
}

type hubRoom struct {
	room *room.Room
	info protocol.RoomInfo
}

// Hub accepts greeted connections, performs the login handshake, maintains
// the user and room directories, and routes room-scoped messages. All state
// is confined to the hub goroutine.
type Hub struct {
	inbox chan Msg
	db    carddb.Database
	val   *validate.Validator
	log   *zap.Logger
	rng   *rand.Rand

	serverName    string
	serverVersion string
	announcements string
	alerts        string

	users    map[string]room.Conn
	names    map[room.Conn]string
	rooms    map[int]*hubRoom
	connRoom map[room.Conn]int

	nextRoomID int

	addedRooms   []protocol.RoomInfo
	removedRooms []int
	playerCounts map[int]int
	addedUsers   []string
	removedUsers []string

	roomOpts      []room.Option
	flushInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Hub.
type Option func(*Hub)

// WithRoomOptions forwards options to every room the hub creates; used by
// tests to shrink timers.
func WithRoomOptions(opts ...room.Option) Option {
	return func(h *Hub) { h.roomOpts = opts }
}

// WithFlushInterval overrides the directory-diff coalescing interval; used
// by tests.
func WithFlushInterval(d time.Duration) Option {
	return func(h *Hub) { h.flushInterval = d }
}

// WithNotices seeds the announcements and alerts texts.
func WithNotices(announcements, alerts string) Option {
	return func(h *Hub) {
		h.announcements = announcements
		h.alerts = alerts
	}
}

func New(parent context.Context, db carddb.Database, serverName, serverVersion string, log *zap.Logger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:         make(chan Msg, 256),
		db:            db,
		val:           validate.New(db, log.Named("validator")),
		log:           log,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		serverName:    serverName,
		serverVersion: serverVersion,
		users:         make(map[string]room.Conn),
		names:         make(map[room.Conn]string),
		rooms:         make(map[int]*hubRoom),
		connRoom:      make(map[room.Conn]int),
		nextRoomID:    1,
		playerCounts:  make(map[int]int),
		flushInterval: directoryFlushInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// room.Events — called from room goroutines.

func (h *Hub) PlayerCountChanged(roomID, count int) {
	h.send(playerCountChanged{roomID: roomID, count: count})
}

func (h *Hub) RoomExpired(roomID int) { h.send(roomExpired{roomID: roomID}) }
func (h *Hub) RoomError(roomID int)   { h.send(roomError{roomID: roomID}) }

func (h *Hub) send(m Msg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) loop() {
	flush := time.NewTicker(h.flushInterval)
	defer flush.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-flush.C:
			h.flushDirectoryDiffs()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connected:
				h.handleConnected(msg.Conn)
			case Disconnected:
				h.handleDisconnected(msg.Conn)
			case Inbound:
				h.handleInbound(msg.Conn, msg.Env)
			case UpdateNotices:
				h.handleUpdateNotices(msg)
			case playerCountChanged:
				h.handlePlayerCountChanged(msg.roomID, msg.count)
			case roomExpired:
				h.teardownRoom(msg.roomID, "expired")
			case roomError:
				h.teardownRoom(msg.roomID, "error")
			case GetView:
				msg.Reply <- h.view()
			case Shutdown:
				for _, hr := range h.rooms {
					h.sendToRoom(hr.room, room.Shutdown{})
				}
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) view() View {
	v := View{RoomInfos: map[int]protocol.RoomInfo{}}
	for name := range h.users {
		v.Users = append(v.Users, name)
	}
	for id, hr := range h.rooms {
		v.RoomIDs = append(v.RoomIDs, id)
		v.RoomInfos[id] = hr.info
	}
	return v
}

func (h *Hub) handleConnected(conn room.Conn) {
	conn.Send(protocol.NewEnvelope(protocol.TypeGreetingInd, protocol.GreetingInd{
		ProtocolVersionMajor: protocol.VersionMajor,
		ProtocolVersionMinor: protocol.VersionMinor,
		ServerName:           h.serverName,
		ServerVersion:        h.serverVersion,
	}))
}

func (h *Hub) handleDisconnected(conn room.Conn) {
	if id, ok := h.connRoom[conn]; ok {
		if hr, ok := h.rooms[id]; ok {
			h.sendToRoom(hr.room, room.Leave{Conn: conn})
		}
		delete(h.connRoom, conn)
	}

	if name, ok := h.names[conn]; ok {
		delete(h.names, conn)
		delete(h.users, name)
		h.removedUsers = append(h.removedUsers, name)
		h.log.Info("user disconnected", zap.String("name", name))
	}
}

func (h *Hub) handleInbound(conn room.Conn, env protocol.Envelope) {
	name, loggedIn := h.names[conn]

	if !loggedIn {
		switch env.Type {
		case protocol.TypeLoginReq:
			h.handleLogin(conn, env)
		case protocol.TypeKeepAliveInd:
		default:
			h.log.Warn("message before login", zap.String("type", string(env.Type)))
		}
		return
	}

	switch env.Type {
	case protocol.TypeKeepAliveInd:
		// Any inbound traffic already refreshed the transport deadline.

	case protocol.TypeChatMessageInd:
		h.handleChat(conn, name, env)

	case protocol.TypeCreateRoomReq:
		h.handleCreateRoom(conn, env)

	case protocol.TypeJoinRoomReq:
		h.handleJoinRoom(conn, name, env)

	case protocol.TypeDepartRoomInd:
		if id, ok := h.connRoom[conn]; ok {
			if hr, ok := h.rooms[id]; ok {
				h.sendToRoom(hr.room, room.Leave{Conn: conn})
			}
			delete(h.connRoom, conn)
		}

	case protocol.TypePlayerReadyInd,
		protocol.TypePlayerCardSelectionReq,
		protocol.TypePlayerAutoCardSelReq,
		protocol.TypePlayerInventoryUpdateInd:
		id, ok := h.connRoom[conn]
		if !ok {
			h.log.Warn("room message from roomless client",
				zap.String("name", name), zap.String("type", string(env.Type)))
			return
		}
		if hr, ok := h.rooms[id]; ok {
			h.sendToRoom(hr.room, room.ClientMsg{Conn: conn, Env: env})
		}

	default:
		h.log.Warn("unhandled message", zap.String("type", string(env.Type)))
	}
}

func (h *Hub) handleLogin(conn room.Conn, env protocol.Envelope) {
	var req protocol.LoginReq
	if err := env.Decode(&req); err != nil {
		h.log.Warn("bad login request", zap.Error(err))
		conn.Close()
		return
	}

	if req.ProtocolVersionMajor != protocol.VersionMajor {
		h.log.Info("login refused: incompatible protocol",
			zap.Int("client_major", req.ProtocolVersionMajor))
		conn.Send(protocol.NewEnvelope(protocol.TypeLoginRsp, protocol.LoginRsp{
			Result: protocol.LoginFailureIncompatProto,
			DownloadInfo: &protocol.ClientDownloadInfo{
				Description: "Download a compatible client",
				URL:         "https://github.com/draftroom/draftroom/releases",
			},
		}))
		conn.Close()
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLength {
		conn.Send(protocol.NewEnvelope(protocol.TypeLoginRsp, protocol.LoginRsp{
			Result: protocol.LoginFailureInvalidName,
		}))
		conn.Close()
		return
	}

	if _, taken := h.users[name]; taken {
		h.log.Info("login refused: name in use", zap.String("name", name))
		conn.Send(protocol.NewEnvelope(protocol.TypeLoginRsp, protocol.LoginRsp{
			Result: protocol.LoginFailureNameInUse,
		}))
		conn.Close()
		return
	}

	h.users[name] = conn
	h.names[conn] = name
	h.addedUsers = append(h.addedUsers, name)
	h.log.Info("user logged in", zap.String("name", name), zap.String("remote", conn.RemoteAddr()))

	conn.Send(protocol.NewEnvelope(protocol.TypeLoginRsp, protocol.LoginRsp{
		Result: protocol.LoginSuccess,
	}))
	if h.announcements != "" {
		conn.Send(protocol.NewEnvelope(protocol.TypeAnnouncementsInd, protocol.AnnouncementsInd{Text: h.announcements}))
	}
	if h.alerts != "" {
		conn.Send(protocol.NewEnvelope(protocol.TypeAlertsInd, protocol.AlertsInd{Text: h.alerts}))
	}
	conn.Send(protocol.NewEnvelope(protocol.TypeRoomCapabilitiesInd, h.capabilities()))
	conn.Send(protocol.NewEnvelope(protocol.TypeRoomsInfoInd, h.baselineRooms()))
	conn.Send(protocol.NewEnvelope(protocol.TypeUsersInfoInd, h.baselineUsers()))
}

func (h *Hub) capabilities() protocol.RoomCapabilitiesInd {
	var ind protocol.RoomCapabilitiesInd
	for _, code := range h.db.SetCodes() {
		name, _ := h.db.SetName(code)
		ind.Sets = append(ind.Sets, protocol.SetCapability{
			Code:              code,
			Name:              name,
			BoosterGeneration: h.db.HasBoosters(code),
		})
	}
	return ind
}

func (h *Hub) baselineRooms() protocol.RoomsInfoInd {
	ind := protocol.RoomsInfoInd{Baseline: true}
	for _, hr := range h.rooms {
		ind.AddedRooms = append(ind.AddedRooms, hr.info)
	}
	return ind
}

func (h *Hub) baselineUsers() protocol.UsersInfoInd {
	ind := protocol.UsersInfoInd{Baseline: true}
	for name := range h.users {
		ind.AddedUsers = append(ind.AddedUsers, name)
	}
	return ind
}

func (h *Hub) handleChat(conn room.Conn, sender string, env protocol.Envelope) {
	var chat protocol.ChatMessageInd
	if err := env.Decode(&chat); err != nil {
		h.log.Warn("bad chat message", zap.Error(err))
		return
	}

	if chat.Scope == protocol.ChatScopeRoom {
		if id, ok := h.connRoom[conn]; ok {
			if hr, ok := h.rooms[id]; ok {
				h.sendToRoom(hr.room, room.ClientMsg{Conn: conn, Env: env})
			}
		}
		return
	}

	h.broadcast(protocol.NewEnvelope(protocol.TypeChatMessageDeliveryInd, protocol.ChatMessageDeliveryInd{
		Sender: sender,
		Scope:  protocol.ChatScopeAll,
		Text:   chat.Text,
	}))
}

func (h *Hub) handleCreateRoom(conn room.Conn, env protocol.Envelope) {
	var req protocol.CreateRoomReq
	if err := env.Decode(&req); err != nil {
		h.log.Warn("bad create room request", zap.Error(err))
		conn.Send(protocol.NewEnvelope(protocol.TypeCreateRoomFailureRsp, protocol.CreateRoomFailureRsp{
			Result: string(validate.InvalidRoundConfig),
		}))
		return
	}

	if reason, ok := h.val.Validate(req.RoomConfig); !ok {
		conn.Send(protocol.NewEnvelope(protocol.TypeCreateRoomFailureRsp, protocol.CreateRoomFailureRsp{
			Result: string(reason),
		}))
		return
	}

	dispensers, err := draft.BuildDispensers(req.RoomConfig.Draft, h.db, rand.New(rand.NewSource(h.rng.Int63())))
	if err != nil {
		h.log.Error("dispenser construction failed after validation", zap.Error(err))
		conn.Send(protocol.NewEnvelope(protocol.TypeCreateRoomFailureRsp, protocol.CreateRoomFailureRsp{
			Result: string(validate.InvalidDispenserConfig),
		}))
		return
	}

	id := h.nextRoomID
	h.nextRoomID++

	rm, err := room.New(h.ctx, id, req.RoomConfig, dispensers, h, h.log.Named("room"), h.roomOpts...)
	if err != nil {
		h.log.Error("room construction failed", zap.Error(err))
		conn.Send(protocol.NewEnvelope(protocol.TypeCreateRoomFailureRsp, protocol.CreateRoomFailureRsp{
			Result: string(validate.InvalidRoundConfig),
		}))
		return
	}

	info := protocol.RoomInfo{
		RoomID:            id,
		Name:              req.RoomConfig.Name,
		PasswordProtected: req.RoomConfig.Password != "",
		ChairCount:        req.RoomConfig.Draft.ChairCount,
		BotCount:          req.RoomConfig.BotCount,
		RoundCount:        len(req.RoomConfig.Draft.Rounds),
	}
	h.rooms[id] = &hubRoom{room: rm, info: info}
	h.addedRooms = append(h.addedRooms, info)
	h.log.Info("room created", zap.Int("room_id", id), zap.String("name", info.Name))

	conn.Send(protocol.NewEnvelope(protocol.TypeCreateRoomSuccessRsp, protocol.CreateRoomSuccessRsp{RoomID: id}))
}

func (h *Hub) handleJoinRoom(conn room.Conn, name string, env protocol.Envelope) {
	var req protocol.JoinRoomReq
	if err := env.Decode(&req); err != nil {
		h.log.Warn("bad join room request", zap.Error(err))
		return
	}

	hr, ok := h.rooms[req.RoomID]
	if !ok {
		conn.Send(protocol.NewEnvelope(protocol.TypeJoinRoomFailureRsp, protocol.JoinRoomFailureRsp{
			Result: protocol.JoinFailureUnknownRoom,
			RoomID: req.RoomID,
		}))
		return
	}

	// Joining a new room implicitly departs the old one.
	if old, ok := h.connRoom[conn]; ok && old != req.RoomID {
		if oldRoom, ok := h.rooms[old]; ok {
			h.sendToRoom(oldRoom.room, room.Leave{Conn: conn})
		}
	}

	h.connRoom[conn] = req.RoomID
	h.sendToRoom(hr.room, room.Join{Conn: conn, Name: name, Password: req.Password})
}

func (h *Hub) handleUpdateNotices(msg UpdateNotices) {
	h.announcements = msg.Announcements
	h.alerts = msg.Alerts
	h.broadcast(protocol.NewEnvelope(protocol.TypeAnnouncementsInd, protocol.AnnouncementsInd{Text: h.announcements}))
	h.broadcast(protocol.NewEnvelope(protocol.TypeAlertsInd, protocol.AlertsInd{Text: h.alerts}))
}

func (h *Hub) handlePlayerCountChanged(roomID, count int) {
	hr, ok := h.rooms[roomID]
	if !ok {
		return
	}
	hr.info.PlayerCount = count
	h.playerCounts[roomID] = count
}

func (h *Hub) teardownRoom(roomID int, cause string) {
	hr, ok := h.rooms[roomID]
	if !ok {
		return
	}
	h.log.Info("tearing down room", zap.Int("room_id", roomID), zap.String("cause", cause))

	h.sendToRoom(hr.room, room.Shutdown{})
	delete(h.rooms, roomID)
	delete(h.playerCounts, roomID)
	h.removedRooms = append(h.removedRooms, roomID)

	for conn, id := range h.connRoom {
		if id == roomID {
			delete(h.connRoom, conn)
		}
	}
}

// flushDirectoryDiffs sends accumulated room/user directory changes to all
// logged-in clients.
func (h *Hub) flushDirectoryDiffs() {
	if len(h.addedRooms) > 0 || len(h.removedRooms) > 0 || len(h.playerCounts) > 0 {
		ind := protocol.RoomsInfoInd{
			AddedRooms:   h.addedRooms,
			RemovedRooms: h.removedRooms,
		}
		for id, count := range h.playerCounts {
			ind.PlayerCounts = append(ind.PlayerCounts, protocol.RoomPlayerCount{
				RoomID:      id,
				PlayerCount: count,
			})
		}
		h.broadcast(protocol.NewEnvelope(protocol.TypeRoomsInfoInd, ind))
		h.addedRooms = nil
		h.removedRooms = nil
		h.playerCounts = make(map[int]int)
	}

	if len(h.addedUsers) > 0 || len(h.removedUsers) > 0 {
		h.broadcast(protocol.NewEnvelope(protocol.TypeUsersInfoInd, protocol.UsersInfoInd{
			AddedUsers:   h.addedUsers,
			RemovedUsers: h.removedUsers,
		}))
		h.addedUsers = nil
		h.removedUsers = nil
	}
}

func (h *Hub) broadcast(env protocol.Envelope) {
	for conn := range h.names {
		conn.Send(env)
	}
}

// sendToRoom never blocks the hub loop; an unresponsive room drops the
// message.
func (h *Hub) sendToRoom(rm *room.Room, m room.Msg) {
	select {
	case rm.Inbox() <- m:
	default:
		h.log.Warn("room inbox full, dropping message", zap.Int("room_id", rm.ID()))
	}
}
