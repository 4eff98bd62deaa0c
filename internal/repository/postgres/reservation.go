package postgres

import (
	"context"
	"fmt"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/repository"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const reservationColumns = `id, member_id, start_at, end_at, status, is_paid, total_price, created_on, updated_on, deleted_on`

var reservationSelect = []any{"id", "member_id", "start_at", "end_at", "status", "is_paid", "total_price", "created_on", "updated_on", "deleted_on"}

type reservationRepository struct {
	db DBTX
}

func NewReservationRepository(db DBTX) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	query := `INSERT INTO reservations (id, member_id, start_at, end_at, status, is_paid, total_price, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	logger.DatabaseCall("insert", "reservations", "id", res.ID)
	_, err := r.db.ExecContext(ctx, query, res.ID, res.MemberID, res.Start, res.End, string(res.Status), res.IsPaid, res.TotalPrice, res.CreatedOn, res.UpdatedOn)
	if err != nil {
		return err
	}
	if len(res.Items) == 0 {
		return nil
	}

	rows := make([]any, len(res.Items))
	for i, it := range res.Items {
		rows[i] = goqu.Record{
			"reservation_id": res.ID.String(),
			"position":       i,
			"tool_id":        it.ToolID.String(),
			"price_per_day":  it.PricePerDay.String(),
			"start_at":       res.Start,
			"end_at":         res.End,
			"active":         res.Status == domain.ReservationStatusActive,
		}
	}
	itemsSQL, args, err := dialect.Insert("reservation_items").Rows(rows...).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build reservation items insert: %w", err)
	}
	_, err = r.db.ExecContext(ctx, itemsSQL, args...)
	return err
}

func (r *reservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	var res domain.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 AND deleted_on IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&res.ID, &res.MemberID, &res.Start, &res.End, &res.Status, &res.IsPaid, &res.TotalPrice, &res.CreatedOn, &res.UpdatedOn, &res.DeletedOn)
	if err != nil {
		return nil, notFound(err)
	}

	list := []domain.Reservation{res}
	if err := r.attachItems(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.ReservationStatus) error {
	query := `UPDATE reservations SET status = $1, updated_on = $2 WHERE id = $3 AND status = $4 AND deleted_on IS NULL`
	logger.DatabaseCall("update", "reservations.status", "id", id, "from", from, "to", to)
	result, err := r.db.ExecContext(ctx, query, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("update", affected, nil)
	if affected == 0 {
		var current string
		err := r.db.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = $1 AND deleted_on IS NULL`, id).Scan(&current)
		if err != nil {
			return notFound(err)
		}
		return repository.ErrStatusConflict
	}

	if to.IsTerminal() {
		_, err = r.db.ExecContext(ctx, `UPDATE reservation_items SET active = FALSE WHERE reservation_id = $1`, id)
		return err
	}
	return nil
}

func (r *reservationRepository) ActiveConflicts(ctx context.Context, toolIDs []uuid.UUID, w domain.Window, ignoreID *uuid.UUID) ([]uuid.UUID, error) {
	if len(toolIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT ri.tool_id
	          FROM reservation_items ri
	          JOIN reservations r ON r.id = ri.reservation_id
	          WHERE r.status = 'ACTIVE' AND r.deleted_on IS NULL
	            AND r.start_at < $2 AND r.end_at > $1
	            AND ri.tool_id = ANY($3::uuid[])
	            AND ($4::uuid IS NULL OR r.id <> $4::uuid)`
	logger.DatabaseCall("query", "reservations.ActiveConflicts", "tools", len(toolIDs))
	rows, err := r.db.QueryContext(ctx, query, w.Start, w.End, pq.Array(idStrings(toolIDs)), optionalID(ignoreID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *reservationRepository) ListActiveByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	          WHERE member_id = $1 AND deleted_on IS NULL AND status = 'ACTIVE' AND end_at > $2
	          ORDER BY start_at`
	return r.query(ctx, query, memberID, asOf)
}

func (r *reservationRepository) ListHistoryByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time, page, pageSize int32) ([]domain.Reservation, int32, error) {
	offset := (page - 1) * pageSize
	where := ` FROM reservations
	          WHERE member_id = $1 AND deleted_on IS NULL AND NOT (status = 'ACTIVE' AND end_at > $2)`

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*)`+where, memberID, asOf).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + reservationColumns + where + ` ORDER BY start_at DESC LIMIT $3 OFFSET $4`
	list, err := r.query(ctx, query, memberID, asOf, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	return list, count, nil
}

func (r *reservationRepository) Search(ctx context.Context, f repository.ReservationFilter) ([]domain.Reservation, int32, error) {
	ds := dialect.From("reservations").Where(goqu.C("deleted_on").IsNull())
	if f.MemberID != nil {
		ds = ds.Where(goqu.C("member_id").Eq(f.MemberID.String()))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*f.Status)))
	}
	if f.From != nil {
		ds = ds.Where(goqu.C("start_at").Gte(*f.From))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("start_at").Lt(*f.To))
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build reservation count: %w", err)
	}
	var count int32
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&count); err != nil {
		return nil, 0, err
	}

	listSQL, args, err := ds.Select(reservationSelect...).
		Order(goqu.C("start_at").Desc()).
		Limit(uint(f.PageSize)).
		Offset(uint((f.Page - 1) * f.PageSize)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build reservation search: %w", err)
	}
	logger.DatabaseCall("query", listSQL)
	list, err := r.query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, count, nil
}

// query runs a header query and attaches the items of every row.
func (r *reservationRepository) query(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	list := []domain.Reservation{}
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.MemberID, &res.Start, &res.End, &res.Status, &res.IsPaid, &res.TotalPrice, &res.CreatedOn, &res.UpdatedOn, &res.DeletedOn); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachItems(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *reservationRepository) attachItems(ctx context.Context, list []domain.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[uuid.UUID]int, len(list))
	ids := make([]uuid.UUID, len(list))
	for i, res := range list {
		index[res.ID] = i
		ids[i] = res.ID
	}

	query := `SELECT reservation_id, tool_id, price_per_day FROM reservation_items
	          WHERE reservation_id = ANY($1::uuid[]) ORDER BY reservation_id, position`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(idStrings(ids)))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var resID uuid.UUID
		var it domain.ReservationItem
		if err := rows.Scan(&resID, &it.ToolID, &it.PricePerDay); err != nil {
			return err
		}
		i := index[resID]
		list[i].Items = append(list[i].Items, it)
	}
	return rows.Err()
}

func optionalID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
