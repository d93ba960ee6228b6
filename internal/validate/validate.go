// Package validate checks room configurations before a room is created.
package validate

import (
	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/carddb"
	"github.com/draftroom/draftroom/internal/protocol"
)

// FailureReason is the typed rejection carried by CreateRoomFailureRsp.
type FailureReason string

const (
	InvalidChairCount      FailureReason = "invalid_chair_count"
	InvalidBotCount        FailureReason = "invalid_bot_count"
	InvalidRoundCount      FailureReason = "invalid_round_count"
	InvalidDispenserCount  FailureReason = "invalid_dispenser_count"
	InvalidSetCode         FailureReason = "invalid_set_code"
	InvalidDispenserConfig FailureReason = "invalid_dispenser_config"
	InvalidCustomCardList  FailureReason = "invalid_custom_card_list"
	InvalidDraftType       FailureReason = "invalid_draft_type"
	InvalidRoundConfig     FailureReason = "invalid_round_config"
)

// Validator checks RoomConfigs against the card database.
type Validator struct {
	db  carddb.Database
	log *zap.Logger
}

func New(db carddb.Database, log *zap.Logger) *Validator {
	return &Validator{db: db, log: log}
}

// Validate returns the first failure found, or ("", true) when the config is
// acceptable. Checks run in a fixed order; the first failure wins.
func (v *Validator) Validate(roomConfig protocol.RoomConfig) (FailureReason, bool) {
	cfg := roomConfig.Draft

	if cfg.ChairCount < 1 {
		v.log.Warn("invalid chair count", zap.Int("chair_count", cfg.ChairCount))
		return InvalidChairCount, false
	}

	if roomConfig.BotCount < 0 || roomConfig.BotCount >= cfg.ChairCount {
		v.log.Warn("invalid bot count",
			zap.Int("bot_count", roomConfig.BotCount),
			zap.Int("chair_count", cfg.ChairCount))
		return InvalidBotCount, false
	}

	if len(cfg.Rounds) < 1 {
		v.log.Warn("invalid round count")
		return InvalidRoundCount, false
	}

	if len(cfg.Dispensers) < 1 {
		v.log.Warn("invalid dispenser count")
		return InvalidDispenserCount, false
	}

	for i, disp := range cfg.Dispensers {
		// Source count is per-dispenser.
		sources := 0

		for _, setCode := range disp.BoosterSetCodes {
			if _, ok := v.db.SetName(setCode); !ok {
				v.log.Warn("dispenser uses invalid set code",
					zap.Int("dispenser", i), zap.String("set_code", setCode))
				return InvalidSetCode, false
			}
			if !v.db.HasBoosters(setCode) {
				v.log.Warn("dispenser uses non-booster set code with booster method",
					zap.Int("dispenser", i), zap.String("set_code", setCode))
				return InvalidDispenserConfig, false
			}
			sources++
		}

		if disp.CustomCardListIndex != nil {
			idx := *disp.CustomCardListIndex
			if idx < 0 || idx >= len(cfg.CustomCardLists) {
				v.log.Warn("dispenser uses invalid custom card list index",
					zap.Int("dispenser", i), zap.Int("index", idx))
				return InvalidDispenserConfig, false
			}
			sources++
		}

		if sources < 1 {
			v.log.Warn("dispenser has no sources", zap.Int("dispenser", i))
			return InvalidDispenserConfig, false
		}
	}

	for i, ccl := range cfg.CustomCardLists {
		if len(ccl.CardQuantities) == 0 {
			v.log.Warn("custom card list has no card quantity entries", zap.Int("list", i))
			return InvalidCustomCardList, false
		}
		qty := 0
		for _, cq := range ccl.CardQuantities {
			qty += cq.Quantity
		}
		if qty <= 0 {
			v.log.Warn("custom card list has no cards", zap.Int("list", i))
			return InvalidCustomCardList, false
		}
	}

	// Rounds must be homogeneous: all booster, a single sealed, or all
	// grid. Every dispensation and grid reference must be in range.
	booster := false
	grid := false
	for i, round := range cfg.Rounds {
		switch {
		case round.Booster != nil:
			if i > 0 && !booster {
				v.log.Warn("booster draft contains a non-booster round")
				return InvalidDraftType, false
			}
			booster = true

		case round.Sealed != nil:
			if i > 0 {
				v.log.Warn("sealed draft may only have one round")
				return InvalidDraftType, false
			}

		case round.Grid != nil:
			if i > 0 && !grid {
				v.log.Warn("grid draft contains a non-grid round")
				return InvalidDraftType, false
			}
			grid = true

			idx := round.Grid.DispenserIndex
			if idx < 0 || idx >= len(cfg.Dispensers) {
				v.log.Warn("grid round has an invalid dispenser index",
					zap.Int("round", i), zap.Int("index", idx))
				return InvalidRoundConfig, false
			}

		default:
			v.log.Warn("draft contains an unsupported round type", zap.Int("round", i))
			return InvalidDraftType, false
		}

		if !grid {
			dispensations := round.Dispensations()
			if len(dispensations) == 0 {
				v.log.Warn("draft round has no dispensations", zap.Int("round", i))
				return InvalidRoundConfig, false
			}
			for _, d := range dispensations {
				if d.DispenserIndex < 0 || d.DispenserIndex >= len(cfg.Dispensers) {
					v.log.Warn("dispensation has an invalid dispenser index",
						zap.Int("round", i), zap.Int("index", d.DispenserIndex))
					return InvalidRoundConfig, false
				}
				for _, chair := range d.ChairIndices {
					if chair < 0 || chair >= cfg.ChairCount {
						v.log.Warn("dispensation has an invalid chair index",
							zap.Int("round", i), zap.Int("chair", chair))
						return InvalidRoundConfig, false
					}
				}
			}
		}
	}

	return "", true
}
