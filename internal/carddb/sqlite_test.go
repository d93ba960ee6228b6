package carddb

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*SQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectQuery(`SELECT code, name FROM sets`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).
			AddRow("10E", "Tenth Edition").
			AddRow("EVG", "Elves vs. Goblins"))
	mock.ExpectQuery(`SELECT set_code, rarity, count FROM booster_slots`).
		WillReturnRows(sqlmock.NewRows([]string{"set_code", "rarity", "count"}).
			AddRow("10E", "rare", 1).
			AddRow("10E", "uncommon", 3).
			AddRow("10E", "common", 11))

	s, err := NewSQLiteFromDB(db, zap.NewNop())
	require.NoError(t, err)
	return s, mock
}

func TestSQLiteIndex(t *testing.T) {
	s, _ := newMockDB(t)

	assert.Equal(t, []string{"10E", "EVG"}, s.SetCodes())

	name, ok := s.SetName("10E")
	require.True(t, ok)
	assert.Equal(t, "Tenth Edition", name)

	_, ok = s.SetName("XXXX")
	assert.False(t, ok)

	assert.True(t, s.HasBoosters("10E"))
	assert.False(t, s.HasBoosters("EVG"), "no booster slots means no booster support")
	assert.False(t, s.HasBoosters("XXXX"))
}

func TestSQLiteBooster(t *testing.T) {
	s, mock := newMockDB(t)

	rare := sqlmock.NewRows([]string{"name"}).AddRow("Shivan Dragon")
	uncommon := sqlmock.NewRows([]string{"name"}).
		AddRow("Serra Angel").AddRow("Sengir Vampire").AddRow("Juggernaut")
	common := sqlmock.NewRows([]string{"name"})
	for i := 0; i < 11; i++ {
		common.AddRow("Grizzly Bears")
	}

	mock.ExpectQuery(`SELECT name FROM cards WHERE set_code = \? AND rarity = \?`).
		WithArgs("10E", "rare", 1).WillReturnRows(rare)
	mock.ExpectQuery(`SELECT name FROM cards WHERE set_code = \? AND rarity = \?`).
		WithArgs("10E", "uncommon", 3).WillReturnRows(uncommon)
	mock.ExpectQuery(`SELECT name FROM cards WHERE set_code = \? AND rarity = \?`).
		WithArgs("10E", "common", 11).WillReturnRows(common)

	cards, err := s.Booster("10E")
	require.NoError(t, err)
	assert.Len(t, cards, 15)
	assert.Equal(t, "Shivan Dragon", cards[0].Name)
	assert.Equal(t, "10E", cards[0].SetCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteBoosterErrors(t *testing.T) {
	s, _ := newMockDB(t)

	_, err := s.Booster("XXXX")
	assert.ErrorIs(t, err, ErrUnknownSet)

	_, err = s.Booster("EVG")
	assert.ErrorIs(t, err, ErrNoBoosterSpec)
}

func TestStaticDatabase(t *testing.T) {
	db := NewStatic(map[string]StaticSet{
		"TST": TestSet("TST"),
		"NBS": {Name: "No Boosters"},
	}, nil)

	assert.Equal(t, []string{"NBS", "TST"}, db.SetCodes())
	assert.True(t, db.HasBoosters("TST"))
	assert.False(t, db.HasBoosters("NBS"))

	cards, err := db.Booster("TST")
	require.NoError(t, err)
	assert.Len(t, cards, 15)

	_, err = db.Booster("NBS")
	assert.ErrorIs(t, err, ErrNoBoosterSpec)

	_, err = db.Booster("MISSING")
	assert.ErrorIs(t, err, ErrUnknownSet)
}
