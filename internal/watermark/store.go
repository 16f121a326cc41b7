package watermark

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Record is one row of the metadata table: the last point in time a table's
// incremental window has been fully synchronized, plus the table's row count
// at that moment.
type Record struct {
	Table      string    `gorm:"column:table_name;primaryKey"`
	LastUpdate time.Time `gorm:"column:last_update"`
	RowCount   int64     `gorm:"column:row_count"`
}

func (Record) TableName() string { return "metadata" }

// Table names end up substituted into SQL as identifiers, so they are held
// to a strict shape. Values always stay parameterized.
var tableNamePattern = regexp.MustCompile(`^[a-z_]+$`)

// Store reads and writes watermark records on the local reporting store.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(conn *gorm.DB, log *zap.Logger) *Store {
	return &Store{
		db:  conn,
		log: log.Named("watermark"),
	}
}

// LastUpdate returns the stored watermark for the table, or nil when none
// has been recorded yet. Read-only.
func (s *Store) LastUpdate(ctx context.Context, table string) (*time.Time, error) {
	var rows []Record
	err := s.db.WithContext(ctx).Raw(
		`SELECT table_name, last_update, row_count FROM metadata WHERE table_name = ? LIMIT 1`,
		table,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("watermark lookup %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[0].LastUpdate
	return &t, nil
}

// SetLastUpdate replaces the watermark record for the table inside the
// caller's transaction. The recorded timestamp is the run's start time, not
// the time of the write: the next incremental window must anchor to a point
// known to have fully covered all data up to that instant. The row count of
// the destination table is captured alongside for observability.
func (s *Store) SetLastUpdate(ctx context.Context, tx *gorm.DB, table string, lastUpdate time.Time) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	query := fmt.Sprintf(
		`REPLACE INTO metadata (table_name, last_update, row_count) `+
			`VALUES (@table_name, @last_update, (SELECT COUNT(*) FROM %s))`,
		table,
	)
	err := tx.WithContext(ctx).Exec(query, map[string]any{
		"table_name":  table,
		"last_update": lastUpdate,
	}).Error
	if err != nil {
		return fmt.Errorf("watermark update %s: %w", table, err)
	}
	s.log.Debug("watermark advanced",
		zap.String("table", table),
		zap.Time("last_update", lastUpdate),
	)
	return nil
}
