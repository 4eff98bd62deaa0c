package postgres

import (
	"context"
	"fmt"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const toolColumns = `id, name, category_id, price_per_day, is_available, created_on, deleted_on`

type toolRepository struct {
	db   DBTX
	inTx bool
}

func NewToolRepository(db DBTX) repository.ToolRepository {
	return &toolRepository{db: db}
}

func (r *toolRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tool, error) {
	t := &domain.Tool{}
	query := `SELECT ` + toolColumns + ` FROM tools WHERE id = $1 AND deleted_on IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.CategoryID, &t.PricePerDay, &t.IsAvailable, &t.CreatedOn, &t.DeletedOn)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *toolRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Tool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + toolColumns + ` FROM tools WHERE id = ANY($1::uuid[])`
	logger.DatabaseCall("query", "tools.GetByIDs", "ids", len(ids))
	rows, err := r.db.QueryContext(ctx, query, pq.Array(idStrings(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []domain.Tool
	for rows.Next() {
		var t domain.Tool
		if err := rows.Scan(&t.ID, &t.Name, &t.CategoryID, &t.PricePerDay, &t.IsAvailable, &t.CreatedOn, &t.DeletedOn); err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

func (r *toolRepository) ListBookable(ctx context.Context) ([]domain.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools WHERE deleted_on IS NULL AND is_available ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []domain.Tool
	for rows.Next() {
		var t domain.Tool
		if err := rows.Scan(&t.ID, &t.Name, &t.CategoryID, &t.PricePerDay, &t.IsAvailable, &t.CreatedOn, &t.DeletedOn); err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// LockForBooking takes row locks on the tools in id order so that two
// transactions booking overlapping tool sets cannot deadlock.
func (r *toolRepository) LockForBooking(ctx context.Context, ids []uuid.UUID) error {
	if !r.inTx || len(ids) == 0 {
		return nil
	}
	query := `SELECT id FROM tools WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`
	logger.DatabaseCall("query", "tools.LockForBooking", "ids", len(ids))
	rows, err := r.db.QueryContext(ctx, query, pq.Array(idStrings(ids)))
	if err != nil {
		return fmt.Errorf("lock tools: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func scanIDs(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
