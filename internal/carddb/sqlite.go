package carddb

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/draft"
)

// SQLite reads card data from a sqlite file with the schema:
//
//	sets(code TEXT PRIMARY KEY, name TEXT)
//	cards(set_code TEXT, name TEXT, rarity TEXT)
//	booster_slots(set_code TEXT, rarity TEXT, count INTEGER)
//
// Set metadata is cached at open; booster draws hit the database.
type SQLite struct {
	db    *sql.DB
	log   *zap.Logger
	names map[string]string
	slots map[string][]BoosterSlot
}

// OpenSQLite opens and indexes the card database at path.
func OpenSQLite(path string, log *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open card database: %w", err)
	}

	s := &SQLite{db: db, log: log}
	if err := s.index(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("card database loaded",
		zap.String("path", path),
		zap.Int("sets", len(s.names)))
	return s, nil
}

// NewSQLiteFromDB wraps an existing handle; used by tests with sqlmock.
func NewSQLiteFromDB(db *sql.DB, log *zap.Logger) (*SQLite, error) {
	s := &SQLite{db: db, log: log}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) index() error {
	s.names = make(map[string]string)
	s.slots = make(map[string][]BoosterSlot)

	rows, err := s.db.Query(`SELECT code, name FROM sets`)
	if err != nil {
		return fmt.Errorf("read sets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return fmt.Errorf("scan set row: %w", err)
		}
		s.names[code] = name
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read sets: %w", err)
	}

	slotRows, err := s.db.Query(`SELECT set_code, rarity, count FROM booster_slots ORDER BY set_code, rowid`)
	if err != nil {
		return fmt.Errorf("read booster slots: %w", err)
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var code, rarity string
		var count int
		if err := slotRows.Scan(&code, &rarity, &count); err != nil {
			return fmt.Errorf("scan booster slot row: %w", err)
		}
		s.slots[code] = append(s.slots[code], BoosterSlot{Rarity: rarity, Count: count})
	}
	if err := slotRows.Err(); err != nil {
		return fmt.Errorf("read booster slots: %w", err)
	}

	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) SetCodes() []string {
	codes := make([]string, 0, len(s.names))
	for code := range s.names {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s *SQLite) SetName(code string) (string, bool) {
	name, ok := s.names[code]
	return name, ok
}

func (s *SQLite) HasBoosters(code string) bool {
	return len(s.slots[code]) > 0
}

func (s *SQLite) Booster(code string) ([]draft.Card, error) {
	if _, ok := s.names[code]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSet, code)
	}
	slots := s.slots[code]
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBoosterSpec, code)
	}

	var cards []draft.Card
	for _, slot := range slots {
		rows, err := s.db.Query(
			`SELECT name FROM cards WHERE set_code = ? AND rarity = ? ORDER BY RANDOM() LIMIT ?`,
			code, slot.Rarity, slot.Count)
		if err != nil {
			return nil, fmt.Errorf("draw %s/%s: %w", code, slot.Rarity, err)
		}
		drawn := 0
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan card row: %w", err)
			}
			cards = append(cards, draft.Card{SetCode: code, Name: name})
			drawn++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("draw %s/%s: %w", code, slot.Rarity, err)
		}
		rows.Close()

		if drawn < slot.Count {
			s.log.Warn("card pool smaller than booster slot",
				zap.String("set", code),
				zap.String("rarity", slot.Rarity),
				zap.Int("want", slot.Count),
				zap.Int("got", drawn))
		}
	}

	if len(cards) == 0 {
		return nil, fmt.Errorf("set %s produced an empty booster", code)
	}
	return cards, nil
}
