package postgres

import (
	"context"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository"

	"github.com/google/uuid"
)

type memberRepository struct {
	db DBTX
}

func NewMemberRepository(db DBTX) repository.MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	m := &domain.Member{}
	query := `SELECT id, name, email, is_active, created_on, deleted_on FROM members WHERE id = $1 AND deleted_on IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Name, &m.Email, &m.IsActive, &m.CreatedOn, &m.DeletedOn)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}
