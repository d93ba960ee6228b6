package draft

// PassDirection is the direction booster packs travel around the table.
type PassDirection string

const (
	Clockwise        PassDirection = "cw"
	CounterClockwise PassDirection = "ccw"
)

// Config describes one drafting session. It is immutable once the owning
// room has been created; see the validate package for the rules it must
// satisfy.
type Config struct {
	ChairCount      int              `json:"chair_count"`
	Rounds          []Round          `json:"rounds"`
	Dispensers      []DispenserSpec  `json:"dispensers"`
	CustomCardLists []CustomCardList `json:"custom_card_lists,omitempty"`
	Version         int              `json:"version,omitempty"`
}

// Round holds exactly one of its variants.
type Round struct {
	Booster *BoosterRound `json:"booster_round,omitempty"`
	Sealed  *SealedRound  `json:"sealed_round,omitempty"`
	Grid    *GridRound    `json:"grid_round,omitempty"`
}

type BoosterRound struct {
	SelectionTimeSecs int            `json:"selection_time"`
	PassDirection     PassDirection  `json:"pass_direction"`
	Dispensations     []Dispensation `json:"dispensations"`
}

type SealedRound struct {
	Dispensations []Dispensation `json:"dispensations"`
}

type GridRound struct {
	DispenserIndex int `json:"dispenser_index"`
}

// Dispensation selects a dispenser and the chairs that receive its output.
// Quantity is ignored when DispenseAll is set.
type Dispensation struct {
	DispenserIndex int   `json:"dispenser_index"`
	ChairIndices   []int `json:"chair_indices"`
	Quantity       int   `json:"quantity,omitempty"`
	DispenseAll    bool  `json:"dispense_all,omitempty"`
}

// DispenserSpec names the card sources a dispenser draws from: booster set
// codes, a custom card list index, or both.
type DispenserSpec struct {
	BoosterSetCodes     []string `json:"source_booster_set_codes,omitempty"`
	CustomCardListIndex *int     `json:"source_custom_card_list_index,omitempty"`
}

type CustomCardList struct {
	Name           string         `json:"name"`
	CardQuantities []CardQuantity `json:"card_quantities"`
}

type CardQuantity struct {
	Name     string `json:"name"`
	SetCode  string `json:"set_code"`
	Quantity int    `json:"quantity"`
}

// Dispensations returns the round's dispensation list, empty for grid
// rounds.
func (r Round) Dispensations() []Dispensation {
	switch {
	case r.Booster != nil:
		return r.Booster.Dispensations
	case r.Sealed != nil:
		return r.Sealed.Dispensations
	default:
		return nil
	}
}
