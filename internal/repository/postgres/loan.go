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
	"github.com/shopspring/decimal"
)

const loanColumns = `id, member_id, reservation_id, checked_out_at, due_at, returned_at, status, late_fee, notes, total_price, created_on, updated_on, deleted_on`

var loanSelect = []any{"id", "member_id", "reservation_id", "checked_out_at", "due_at", "returned_at", "status", "late_fee", "notes", "total_price", "created_on", "updated_on", "deleted_on"}

type loanRepository struct {
	db DBTX
}

func NewLoanRepository(db DBTX) repository.LoanRepository {
	return &loanRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (domain.Loan, error) {
	var l domain.Loan
	var reservationID uuid.NullUUID
	var lateFee decimal.NullDecimal
	err := row.Scan(&l.ID, &l.MemberID, &reservationID, &l.CheckedOutAt, &l.DueAt, &l.ReturnedAt, &l.Status, &lateFee, &l.Notes, &l.TotalPrice, &l.CreatedOn, &l.UpdatedOn, &l.DeletedOn)
	if err != nil {
		return l, err
	}
	if reservationID.Valid {
		id := reservationID.UUID
		l.ReservationID = &id
	}
	if lateFee.Valid {
		fee := lateFee.Decimal
		l.LateFee = &fee
	}
	return l, nil
}

func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	query := `INSERT INTO loans (id, member_id, reservation_id, checked_out_at, due_at, status, notes, total_price, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	logger.DatabaseCall("insert", "loans", "id", l.ID)
	_, err := r.db.ExecContext(ctx, query, l.ID, l.MemberID, optionalID(l.ReservationID), l.CheckedOutAt, l.DueAt, string(l.Status), l.Notes, l.TotalPrice, l.CreatedOn, l.UpdatedOn)
	if err != nil {
		return err
	}
	if len(l.Items) == 0 {
		return nil
	}

	rows := make([]any, len(l.Items))
	for i, it := range l.Items {
		rows[i] = goqu.Record{
			"loan_id":       l.ID.String(),
			"position":      i,
			"tool_id":       it.ToolID.String(),
			"price_per_day": it.PricePerDay.String(),
		}
	}
	itemsSQL, args, err := dialect.Insert("loan_items").Rows(rows...).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build loan items insert: %w", err)
	}
	_, err = r.db.ExecContext(ctx, itemsSQL, args...)
	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 AND deleted_on IS NULL`
	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}

	list := []domain.Loan{l}
	if err := r.attachItems(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *loanRepository) Return(ctx context.Context, l *domain.Loan) error {
	query := `UPDATE loans SET status = $1, returned_at = $2, late_fee = $3, notes = $4, updated_on = $5
	          WHERE id = $6 AND status = 'OPEN' AND deleted_on IS NULL`
	fee := decimal.NullDecimal{}
	if l.LateFee != nil {
		fee = decimal.NullDecimal{Decimal: *l.LateFee, Valid: true}
	}
	logger.DatabaseCall("update", "loans.return", "id", l.ID, "status", l.Status)
	result, err := r.db.ExecContext(ctx, query, string(l.Status), l.ReturnedAt, fee, l.Notes, l.UpdatedOn, l.ID)
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
		err := r.db.QueryRowContext(ctx, `SELECT status FROM loans WHERE id = $1 AND deleted_on IS NULL`, l.ID).Scan(&current)
		if err != nil {
			return notFound(err)
		}
		return repository.ErrStatusConflict
	}
	return nil
}

func (r *loanRepository) OpenConflicts(ctx context.Context, toolIDs []uuid.UUID, w domain.Window, ignoreID *uuid.UUID) ([]uuid.UUID, error) {
	if len(toolIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT li.tool_id
	          FROM loan_items li
	          JOIN loans l ON l.id = li.loan_id
	          WHERE l.status = 'OPEN' AND l.deleted_on IS NULL
	            AND l.checked_out_at < $2 AND COALESCE(l.returned_at, l.due_at) > $1
	            AND li.tool_id = ANY($3::uuid[])
	            AND ($4::uuid IS NULL OR l.id <> $4::uuid)`
	logger.DatabaseCall("query", "loans.OpenConflicts", "tools", len(toolIDs))
	rows, err := r.db.QueryContext(ctx, query, w.Start, w.End, pq.Array(idStrings(toolIDs)), optionalID(ignoreID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *loanRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans
	          WHERE status = 'OPEN' AND deleted_on IS NULL AND due_at < $1
	          ORDER BY due_at`
	return r.query(ctx, query, asOf)
}

func (r *loanRepository) Search(ctx context.Context, f repository.LoanFilter) ([]domain.Loan, int32, error) {
	ds := dialect.From("loans").Where(goqu.C("deleted_on").IsNull())
	if f.MemberID != nil {
		ds = ds.Where(goqu.C("member_id").Eq(f.MemberID.String()))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*f.Status)))
	}
	if f.OpenOnly {
		ds = ds.Where(goqu.C("status").Eq(string(domain.LoanStatusOpen)))
	}
	if f.ToolID != nil {
		ds = ds.Where(goqu.L("EXISTS (SELECT 1 FROM loan_items li WHERE li.loan_id = loans.id AND li.tool_id = ?)", f.ToolID.String()))
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build loan count: %w", err)
	}
	var count int32
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&count); err != nil {
		return nil, 0, err
	}

	listSQL, args, err := ds.Select(loanSelect...).
		Order(goqu.C("checked_out_at").Desc()).
		Limit(uint(f.PageSize)).
		Offset(uint((f.Page - 1) * f.PageSize)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build loan search: %w", err)
	}
	logger.DatabaseCall("query", listSQL)
	list, err := r.query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, count, nil
}

func (r *loanRepository) query(ctx context.Context, query string, args ...any) ([]domain.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	list := []domain.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, l)
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

func (r *loanRepository) attachItems(ctx context.Context, list []domain.Loan) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[uuid.UUID]int, len(list))
	ids := make([]uuid.UUID, len(list))
	for i, l := range list {
		index[l.ID] = i
		ids[i] = l.ID
	}

	query := `SELECT loan_id, tool_id, price_per_day FROM loan_items
	          WHERE loan_id = ANY($1::uuid[]) ORDER BY loan_id, position`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(idStrings(ids)))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var loanID uuid.UUID
		var it domain.LoanItem
		if err := rows.Scan(&loanID, &it.ToolID, &it.PricePerDay); err != nil {
			return err
		}
		i := index[loanID]
		list[i].Items = append(list[i].Items, it)
	}
	return rows.Err()
}
