package target

import (
	"context"
	"fmt"

	"github.com/NeCTAR-RC/reporting-pollster/internal/record"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gateway executes writes against the local reporting store. Upserts use
// replace-on-conflict semantics keyed by the destination table's primary
// key, so re-running a window is idempotent.
type Gateway struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewGateway(conn *gorm.DB, log *zap.Logger) *Gateway {
	return &Gateway{
		db:  conn,
		log: log.Named("target"),
	}
}

// DB exposes the underlying connection for migrations and the watermark
// store, which share it.
func (g *Gateway) DB() *gorm.DB {
	return g.db
}

// Transaction runs fn inside one local-store transaction. A batch upsert and
// its watermark write go through here together so neither is durable without
// the other.
func (g *Gateway) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

// UpsertMany writes each row with the compiled upsert statement. The rows
// bind as named parameters, one execution per row; an empty batch is a
// no-op, not an error.
func (g *Gateway) UpsertMany(ctx context.Context, tx *gorm.DB, query string, rows []record.Record) error {
	for _, row := range rows {
		if err := tx.WithContext(ctx).Exec(query, map[string]any(row)).Error; err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
	}
	g.log.Debug("rows updated", zap.Int("count", len(rows)))
	return nil
}
