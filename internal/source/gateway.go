package source

import (
	"context"
	"fmt"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gateway executes read queries against the remote source databases. The SQL
// text arrives fully compiled (schema identifiers already substituted);
// params carries the named values bound at execution time.
type Gateway interface {
	Query(ctx context.Context, query string, params map[string]any) ([]record.Record, error)
}

type dbGateway struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewGateway wraps the remote gorm connection as a Gateway.
func NewGateway(conn *gorm.DB, log *zap.Logger) Gateway {
	return &dbGateway{
		db:  conn,
		log: log.Named("source"),
	}
}

func (g *dbGateway) Query(ctx context.Context, query string, params map[string]any) ([]record.Record, error) {
	var rows []map[string]any
	tx := g.db.WithContext(ctx)
	if len(params) > 0 {
		tx = tx.Raw(query, params)
	} else {
		tx = tx.Raw(query)
	}
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("source query: %w", err)
	}

	out := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, record.Record(row))
	}
	g.log.Debug("rows returned", zap.Int("count", len(out)))
	return out, nil
}
