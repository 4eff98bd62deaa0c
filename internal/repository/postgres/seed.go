package postgres

import (
	"context"
	"fmt"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/logger"

	"github.com/doug-martin/goqu/v9"
)

// SeedCatalog inserts members and tools, leaving rows that already exist
// untouched.
func SeedCatalog(ctx context.Context, db DBTX, members []domain.Member, tools []domain.Tool) error {
	if len(members) > 0 {
		rows := make([]any, len(members))
		for i, m := range members {
			rows[i] = goqu.Record{
				"id":         m.ID.String(),
				"name":       m.Name,
				"email":      m.Email,
				"is_active":  m.IsActive,
				"created_on": m.CreatedOn,
			}
		}
		query, args, err := dialect.Insert("members").Prepared(true).
			Rows(rows...).
			OnConflict(goqu.DoNothing()).
			ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build member seed: %w", err)
		}
		logger.DatabaseCall("insert", "members", "count", len(members))
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to seed members: %w", err)
		}
	}

	if len(tools) > 0 {
		rows := make([]any, len(tools))
		for i, t := range tools {
			rows[i] = goqu.Record{
				"id":            t.ID.String(),
				"name":          t.Name,
				"category_id":   t.CategoryID.String(),
				"price_per_day": t.PricePerDay.String(),
				"is_available":  t.IsAvailable,
				"created_on":    t.CreatedOn,
			}
		}
		query, args, err := dialect.Insert("tools").Prepared(true).
			Rows(rows...).
			OnConflict(goqu.DoNothing()).
			ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build tool seed: %w", err)
		}
		logger.DatabaseCall("insert", "tools", "count", len(tools))
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to seed tools: %w", err)
		}
	}
	return nil
}
