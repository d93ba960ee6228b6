package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/draftroom/draftroom/internal/draft"
)

// Protocol version advertised in GreetingInd. Clients whose major version
// differs are refused at login.
const (
	VersionMajor = 2
	VersionMinor = 0
)

// MsgType tags the payload carried by an Envelope.
type MsgType string

// Client -> Server
const (
	TypeLoginReq                 MsgType = "LoginReq"
	TypeChatMessageInd           MsgType = "ChatMessageInd"
	TypeCreateRoomReq            MsgType = "CreateRoomReq"
	TypeJoinRoomReq              MsgType = "JoinRoomReq"
	TypeDepartRoomInd            MsgType = "DepartRoomInd"
	TypePlayerReadyInd           MsgType = "PlayerReadyInd"
	TypePlayerCardSelectionReq   MsgType = "PlayerCardSelectionReq"
	TypePlayerAutoCardSelReq     MsgType = "PlayerAutoCardSelectionReq"
	TypePlayerInventoryUpdateInd MsgType = "PlayerInventoryUpdateInd"
	TypeKeepAliveInd             MsgType = "KeepAliveInd"
)

// Server -> Client
const (
	TypeGreetingInd              MsgType = "GreetingInd"
	TypeLoginRsp                 MsgType = "LoginRsp"
	TypeAnnouncementsInd         MsgType = "AnnouncementsInd"
	TypeAlertsInd                MsgType = "AlertsInd"
	TypeRoomCapabilitiesInd      MsgType = "RoomCapabilitiesInd"
	TypeRoomsInfoInd             MsgType = "RoomsInfoInd"
	TypeUsersInfoInd             MsgType = "UsersInfoInd"
	TypeChatMessageDeliveryInd   MsgType = "ChatMessageDeliveryInd"
	TypeCreateRoomSuccessRsp     MsgType = "CreateRoomSuccessRsp"
	TypeCreateRoomFailureRsp     MsgType = "CreateRoomFailureRsp"
	TypeJoinRoomSuccessRspInd    MsgType = "JoinRoomSuccessRspInd"
	TypeJoinRoomFailureRsp       MsgType = "JoinRoomFailureRsp"
	TypeRoomOccupantsInfoInd     MsgType = "RoomOccupantsInfoInd"
	TypeBoosterDraftStateInd     MsgType = "BoosterDraftStateInd"
	TypeRoomStageInd             MsgType = "RoomStageInd"
	TypeRoomChairsDeckInfoInd    MsgType = "RoomChairsDeckInfoInd"
	TypePublicStateInd           MsgType = "PublicStateInd"
	TypePlayerInventoryInd       MsgType = "PlayerInventoryInd"
	TypePlayerCurrentPackInd     MsgType = "PlayerCurrentPackInd"
	TypePlayerCardSelectionRsp   MsgType = "PlayerCardSelectionRsp"
	TypePlayerAutoCardSelInd     MsgType = "PlayerAutoCardSelectionInd"
	TypeRoomErrorInd             MsgType = "RoomErrorInd"
)

// Envelope is the unit carried inside a wire frame.
type Envelope struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
// Marshaling these message structs cannot fail, so errors panic.
func NewEnvelope(t MsgType, payload any) Envelope {
	if payload == nil {
		return Envelope{Type: t}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %s: %v", t, err))
	}
	return Envelope{Type: t, Payload: raw}
}

// Encode serializes the envelope for framing.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a frame payload into an Envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("unparsable envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return e, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("unparsable %s payload: %w", e.Type, err)
	}
	return nil
}

// Zone is an inventory zone a drafted card can live in.
type Zone string

const (
	ZoneMain      Zone = "main"
	ZoneSideboard Zone = "sideboard"
	ZoneJunk      Zone = "junk"
	ZoneAuto      Zone = "auto"
)

// RoomConfig is the client-supplied description of a room.
type RoomConfig struct {
	Name     string       `json:"name"`
	Password string       `json:"password,omitempty"`
	BotCount int          `json:"bot_count"`
	Draft    draft.Config `json:"draft_config"`
}

// Login results.
const (
	LoginSuccess              = "success"
	LoginFailureNameInUse     = "name_in_use"
	LoginFailureInvalidName   = "invalid_name"
	LoginFailureIncompatProto = "incompatible_proto"
)

// Join failure results.
const (
	JoinFailureInvalidPassword = "invalid_password"
	JoinFailureRoomFull        = "room_full"
	JoinFailureUnknownRoom     = "unknown_room"
	JoinFailureNotDeparted     = "not_departed"
)

// Chat scopes.
const (
	ChatScopeAll  = "all"
	ChatScopeRoom = "room"
)

// Room stages.
const (
	StageNew      = "new"
	StageRunning  = "running"
	StageComplete = "complete"
)

// Chair states as broadcast in RoomOccupantsInfoInd.
const (
	ChairStandby  = "standby"
	ChairReady    = "ready"
	ChairActive   = "active"
	ChairDeparted = "departed"
)

type LoginReq struct {
	Name                 string `json:"name"`
	ProtocolVersionMajor int    `json:"protocol_version_major"`
	ProtocolVersionMinor int    `json:"protocol_version_minor"`
}

type ChatMessageInd struct {
	Scope string `json:"scope"`
	Text  string `json:"text"`
}

type CreateRoomReq struct {
	RoomConfig RoomConfig `json:"room_config"`
}

type JoinRoomReq struct {
	RoomID   int    `json:"room_id"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

type DepartRoomInd struct{}

type PlayerReadyInd struct {
	Ready bool `json:"ready"`
}

type PlayerCardSelectionReq struct {
	PackID uint32     `json:"pack_id"`
	Card   draft.Card `json:"card"`
	Zone   Zone       `json:"zone"`
}

type PlayerAutoCardSelectionReq struct {
	PackID uint32     `json:"pack_id"`
	Card   draft.Card `json:"card"`
}

type CardMove struct {
	Card     draft.Card `json:"card"`
	ZoneFrom Zone       `json:"zone_from"`
	ZoneTo   Zone       `json:"zone_to"`
}

type BasicLandQuantity struct {
	Zone     Zone   `json:"zone"`
	Land     string `json:"land"`
	Quantity int    `json:"quantity"`
}

type PlayerInventoryUpdateInd struct {
	Moves      []CardMove          `json:"moves,omitempty"`
	BasicLands []BasicLandQuantity `json:"basic_lands,omitempty"`
}

type KeepAliveInd struct{}

type GreetingInd struct {
	ProtocolVersionMajor int    `json:"protocol_version_major"`
	ProtocolVersionMinor int    `json:"protocol_version_minor"`
	ServerName           string `json:"server_name"`
	ServerVersion        string `json:"server_version"`
}

type ClientDownloadInfo struct {
	Description string `json:"description"`
	URL         string `json:"url"`
}

type LoginRsp struct {
	Result       string              `json:"result"`
	DownloadInfo *ClientDownloadInfo `json:"download_info,omitempty"`
}

type AnnouncementsInd struct {
	Text string `json:"text"`
}

type AlertsInd struct {
	Text string `json:"text"`
}

type SetCapability struct {
	Code              string `json:"code"`
	Name              string `json:"name"`
	BoosterGeneration bool   `json:"booster_generation"`
}

type RoomCapabilitiesInd struct {
	Sets []SetCapability `json:"sets"`
}

// RoomInfo summarizes a room for the directory. The draft configuration is
// abridged: dispenser and custom-list contents are omitted.
type RoomInfo struct {
	RoomID            int    `json:"room_id"`
	Name              string `json:"name"`
	PasswordProtected bool   `json:"password_protected"`
	ChairCount        int    `json:"chair_count"`
	BotCount          int    `json:"bot_count"`
	RoundCount        int    `json:"round_count"`
	PlayerCount       int    `json:"player_count"`
}

type RoomPlayerCount struct {
	RoomID      int `json:"room_id"`
	PlayerCount int `json:"player_count"`
}

// RoomsInfoInd carries a baseline (Baseline true, AddedRooms holds every
// room) or a diff.
type RoomsInfoInd struct {
	Baseline     bool              `json:"baseline,omitempty"`
	AddedRooms   []RoomInfo        `json:"added_rooms,omitempty"`
	RemovedRooms []int             `json:"removed_rooms,omitempty"`
	PlayerCounts []RoomPlayerCount `json:"player_counts,omitempty"`
}

type UsersInfoInd struct {
	Baseline     bool     `json:"baseline,omitempty"`
	AddedUsers   []string `json:"added_users,omitempty"`
	RemovedUsers []string `json:"removed_users,omitempty"`
}

type ChatMessageDeliveryInd struct {
	Sender string `json:"sender"`
	Scope  string `json:"scope"`
	Text   string `json:"text"`
}

type CreateRoomSuccessRsp struct {
	RoomID int `json:"room_id"`
}

type CreateRoomFailureRsp struct {
	Result string `json:"result"`
}

type JoinRoomSuccessRspInd struct {
	RoomID     int        `json:"room_id"`
	Rejoin     bool       `json:"rejoin"`
	ChairIndex int        `json:"chair_idx"`
	RoomConfig RoomConfig `json:"room_config"`
}

type JoinRoomFailureRsp struct {
	Result string `json:"result"`
	RoomID int    `json:"room_id"`
}

type OccupantInfo struct {
	ChairIndex int    `json:"chair_index"`
	Name       string `json:"name"`
	IsBot      bool   `json:"is_bot"`
	State      string `json:"state"`
}

type RoomOccupantsInfoInd struct {
	RoomID  int            `json:"room_id"`
	Players []OccupantInfo `json:"players"`
}

type ChairDraftState struct {
	ChairIndex    int `json:"chair_index"`
	QueuedPacks   int `json:"queued_packs"`
	TimeRemaining int `json:"time_remaining"`
}

type BoosterDraftStateInd struct {
	MillisUntilNextSec int               `json:"millis_until_next_sec"`
	Chairs             []ChairDraftState `json:"chairs"`
}

type RoundInfo struct {
	Round                        int `json:"round"`
	PostRoundTimeRemainingMillis int `json:"post_round_time_remaining_millis,omitempty"`
}

type RoomStageInd struct {
	Stage     string     `json:"stage"`
	RoundInfo *RoundInfo `json:"round_info,omitempty"`
}

type ChairDeckInfo struct {
	ChairIndex int    `json:"chair_index"`
	DeckHash   string `json:"deck_hash"`
}

type RoomChairsDeckInfoInd struct {
	Chairs []ChairDeckInfo `json:"chairs"`
}

type PublicCardState struct {
	Card               draft.Card `json:"card"`
	SelectedChairIndex int        `json:"selected_chair_index"`
	SelectedOrder      int        `json:"selected_order"`
}

type PublicStateInd struct {
	PackID             uint32            `json:"pack_id"`
	CardStates         []PublicCardState `json:"card_states"`
	ActiveChairIndex   int               `json:"active_chair_index"`
	TimeRemainingSecs  int               `json:"time_remaining_secs"`
	MillisUntilNextSec int               `json:"millis_until_next_sec"`
}

type InventoryCard struct {
	Card draft.Card `json:"card"`
	Zone Zone       `json:"zone"`
}

type PlayerInventoryInd struct {
	DraftedCards []InventoryCard     `json:"drafted_cards"`
	BasicLands   []BasicLandQuantity `json:"basic_lands,omitempty"`
}

type PlayerCurrentPackInd struct {
	PackID uint32       `json:"pack_id"`
	Cards  []draft.Card `json:"cards"`
}

type PlayerCardSelectionRsp struct {
	Result bool       `json:"result"`
	PackID uint32     `json:"pack_id"`
	Card   draft.Card `json:"card"`
}

type PlayerAutoCardSelectionInd struct {
	PackID uint32     `json:"pack_id"`
	Card   draft.Card `json:"card"`
}

type RoomErrorInd struct{}
