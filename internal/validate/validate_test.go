package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/carddb"
	"github.com/draftroom/draftroom/internal/draft"
	"github.com/draftroom/draftroom/internal/protocol"
)

func testValidator() *Validator {
	db := carddb.NewStatic(map[string]carddb.StaticSet{
		"10E": carddb.TestSet("Tenth Edition"),
		"EVG": {Name: "Elves vs. Goblins"}, // no booster slots
	}, nil)
	return New(db, zap.NewNop())
}

// boosterRoomConfig builds the model config the cases tweak: three booster
// rounds of 10E at an 8-seat table.
func boosterRoomConfig() protocol.RoomConfig {
	const chairCount = 8
	cfg := draft.Config{ChairCount: chairCount}
	for i := 0; i < 3; i++ {
		cfg.Dispensers = append(cfg.Dispensers, draft.DispenserSpec{
			BoosterSetCodes: []string{"10E"},
		})

		dir := draft.Clockwise
		if i%2 == 1 {
			dir = draft.CounterClockwise
		}
		chairs := make([]int, chairCount)
		for c := range chairs {
			chairs[c] = c
		}
		cfg.Rounds = append(cfg.Rounds, draft.Round{Booster: &draft.BoosterRound{
			SelectionTimeSecs: 60,
			PassDirection:     dir,
			Dispensations: []draft.Dispensation{{
				DispenserIndex: i,
				ChairIndices:   chairs,
				DispenseAll:    true,
			}},
		}})
	}
	return protocol.RoomConfig{Name: "testroom", BotCount: 0, Draft: cfg}
}

func TestValidateSunnyDay(t *testing.T) {
	_, ok := testValidator().Validate(boosterRoomConfig())
	assert.True(t, ok)
}

func TestValidateBoosterRounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*protocol.RoomConfig)
		want   FailureReason
	}{
		{
			name:   "bad chair count",
			mutate: func(rc *protocol.RoomConfig) { rc.Draft.ChairCount = 0 },
			want:   InvalidChairCount,
		},
		{
			name:   "bot count equals chair count",
			mutate: func(rc *protocol.RoomConfig) { rc.BotCount = 8 },
			want:   InvalidBotCount,
		},
		{
			name:   "negative bot count",
			mutate: func(rc *protocol.RoomConfig) { rc.BotCount = -1 },
			want:   InvalidBotCount,
		},
		{
			name:   "no rounds",
			mutate: func(rc *protocol.RoomConfig) { rc.Draft.Rounds = nil },
			want:   InvalidRoundCount,
		},
		{
			name:   "no dispensers",
			mutate: func(rc *protocol.RoomConfig) { rc.Draft.Dispensers = nil },
			want:   InvalidDispenserCount,
		},
		{
			name: "bad set code",
			mutate: func(rc *protocol.RoomConfig) {
				rc.Draft.Dispensers[0].BoosterSetCodes[0] = "XXXX"
			},
			want: InvalidSetCode,
		},
		{
			name: "non-booster set code",
			mutate: func(rc *protocol.RoomConfig) {
				rc.Draft.Dispensers[0].BoosterSetCodes[0] = "EVG"
			},
			want: InvalidDispenserConfig,
		},
		{
			name: "dispenser without sources",
			mutate: func(rc *protocol.RoomConfig) {
				rc.Draft.Dispensers[1] = draft.DispenserSpec{}
			},
			want: InvalidDispenserConfig,
		},
		{
			name: "mixed draft types",
			mutate: func(rc *protocol.RoomConfig) {
				rc.Draft.Rounds = append(rc.Draft.Rounds, draft.Round{Sealed: &draft.SealedRound{}})
			},
			want: InvalidDraftType,
		},
		{
			name: "round without dispensations",
			mutate: func(rc *protocol.RoomConfig) {
				rc.Draft.Rounds[1].Booster.Dispensations = nil
			},
			want: InvalidRoundConfig,
		},
		{
			name: "dispensation index out of range",
			mutate: func(rc *protocol.RoomConfig) {
				rc.Draft.Rounds[0].Booster.Dispensations[0].DispenserIndex = 9
			},
			want: InvalidRoundConfig,
		},
		{
			name: "dispensation chair out of range",
			mutate: func(rc *protocol.RoomConfig) {
				rc.Draft.Rounds[0].Booster.Dispensations[0].ChairIndices = []int{8}
			},
			want: InvalidRoundConfig,
		},
		{
			name: "empty round variant",
			mutate: func(rc *protocol.RoomConfig) {
				rc.Draft.Rounds[0] = draft.Round{}
			},
			want: InvalidDraftType,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc := boosterRoomConfig()
			tc.mutate(&rc)
			reason, ok := testValidator().Validate(rc)
			require.False(t, ok)
			assert.Equal(t, tc.want, reason)
		})
	}
}

func TestValidateBotCountBoundary(t *testing.T) {
	rc := boosterRoomConfig()
	rc.BotCount = 7 // chair_count - 1 is the maximum
	_, ok := testValidator().Validate(rc)
	assert.True(t, ok)
}

func TestValidateCustomCardLists(t *testing.T) {
	listIdx := 0
	base := func() protocol.RoomConfig {
		rc := boosterRoomConfig()
		rc.Draft.Dispensers = []draft.DispenserSpec{{CustomCardListIndex: &listIdx}}
		rc.Draft.CustomCardLists = []draft.CustomCardList{{
			Name: "cube",
			CardQuantities: []draft.CardQuantity{
				{Name: "card1", SetCode: "TST", Quantity: 3},
			},
		}}
		rc.Draft.Rounds = rc.Draft.Rounds[:1]
		rc.Draft.Rounds[0].Booster.Dispensations = []draft.Dispensation{{
			DispenserIndex: 0,
			ChairIndices:   []int{0, 1},
			Quantity:       15,
		}}
		return rc
	}

	t.Run("sunny day", func(t *testing.T) {
		_, ok := testValidator().Validate(base())
		assert.True(t, ok)
	})

	t.Run("no entries", func(t *testing.T) {
		rc := base()
		rc.Draft.CustomCardLists[0].CardQuantities = nil
		reason, ok := testValidator().Validate(rc)
		require.False(t, ok)
		assert.Equal(t, InvalidCustomCardList, reason)
	})

	t.Run("zero total quantity", func(t *testing.T) {
		rc := base()
		rc.Draft.CustomCardLists[0].CardQuantities = []draft.CardQuantity{
			{Name: "card1", SetCode: "TST", Quantity: 0},
			{Name: "card2", SetCode: "TST", Quantity: 0},
		}
		reason, ok := testValidator().Validate(rc)
		require.False(t, ok)
		assert.Equal(t, InvalidCustomCardList, reason)
	})

	t.Run("list index out of range", func(t *testing.T) {
		rc := base()
		bad := 5
		rc.Draft.Dispensers[0].CustomCardListIndex = &bad
		reason, ok := testValidator().Validate(rc)
		require.False(t, ok)
		assert.Equal(t, InvalidDispenserConfig, reason)
	})
}

func TestValidateSealedAndGrid(t *testing.T) {
	t.Run("single sealed round ok", func(t *testing.T) {
		rc := boosterRoomConfig()
		rc.Draft.Rounds = []draft.Round{{Sealed: &draft.SealedRound{
			Dispensations: []draft.Dispensation{{
				DispenserIndex: 0,
				ChairIndices:   []int{0, 1},
				Quantity:       90,
			}},
		}}}
		_, ok := testValidator().Validate(rc)
		assert.True(t, ok)
	})

	t.Run("two sealed rounds rejected", func(t *testing.T) {
		rc := boosterRoomConfig()
		sealed := draft.Round{Sealed: &draft.SealedRound{
			Dispensations: []draft.Dispensation{{DispenserIndex: 0, ChairIndices: []int{0}, Quantity: 1}},
		}}
		rc.Draft.Rounds = []draft.Round{sealed, sealed}
		reason, ok := testValidator().Validate(rc)
		require.False(t, ok)
		assert.Equal(t, InvalidDraftType, reason)
	})

	t.Run("grid rounds ok", func(t *testing.T) {
		rc := boosterRoomConfig()
		rc.Draft.ChairCount = 2
		rc.Draft.Rounds = []draft.Round{
			{Grid: &draft.GridRound{DispenserIndex: 0}},
			{Grid: &draft.GridRound{DispenserIndex: 1}},
		}
		_, ok := testValidator().Validate(rc)
		assert.True(t, ok)
	})

	t.Run("grid bad dispenser index", func(t *testing.T) {
		rc := boosterRoomConfig()
		rc.Draft.Rounds = []draft.Round{{Grid: &draft.GridRound{DispenserIndex: 7}}}
		reason, ok := testValidator().Validate(rc)
		require.False(t, ok)
		assert.Equal(t, InvalidRoundConfig, reason)
	})
}
