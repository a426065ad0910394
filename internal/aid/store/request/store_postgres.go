package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aidpool/internal/aid/models"
	id "aidpool/pkg/domain"
	"aidpool/pkg/platform/sentinel"
	"aidpool/pkg/platform/tx"
)

// PostgresStore persists aid requests in PostgreSQL. All methods honor a
// transaction carried in the context so a disbursement's request and
// donation writes commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

const requestColumns = `id, requester_id, university, category, kind, tier_label,
	amount_min, amount_max, items, justification, status, precheck_reason,
	override_required, override_approved, clarification_note,
	clarification_response, rejection_reason, verified_by, verified_at,
	second_approved_by, second_approved_at, reserved_amount, reserved_at,
	disbursed_by, disbursed_at, disbursements, created_at, updated_at, version`

func (s *PostgresStore) Create(ctx context.Context, request *models.AidRequest) error {
	items, err := json.Marshal(request.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	disbursements, err := json.Marshal(request.Disbursements)
	if err != nil {
		return fmt.Errorf("marshal disbursements: %w", err)
	}

	request.Version = 1
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO aid_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`,
		request.ID.String(), request.RequesterID.String(), request.University.String(),
		string(request.Category), string(request.Kind), request.TierLabel,
		request.AmountMin, request.AmountMax, items, request.Justification,
		string(request.Status), request.PrecheckReason,
		request.OverrideRequired, request.OverrideApproved,
		request.ClarificationNote, request.ClarificationResponse, request.RejectionReason,
		nullActor(request.VerifiedBy), nullTime(request.VerifiedAt),
		nullActor(request.SecondApprovedBy), nullTime(request.SecondApprovedAt),
		request.ReservedAmount, nullTime(request.ReservedAt),
		nullActor(request.DisbursedBy), nullTime(request.DisbursedAt),
		disbursements, request.CreatedAt, request.UpdatedAt, request.Version,
	)
	if err != nil {
		return fmt.Errorf("insert aid request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, requestID id.RequestID) (*models.AidRequest, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM aid_requests WHERE id = $1`, requestID.String())
	request, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return request, err
}

// Update persists changes guarded by the request's version; the version the
// caller loaded must still be current or sentinel.ErrConflict is returned.
func (s *PostgresStore) Update(ctx context.Context, request *models.AidRequest) error {
	items, err := json.Marshal(request.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	disbursements, err := json.Marshal(request.Disbursements)
	if err != nil {
		return fmt.Errorf("marshal disbursements: %w", err)
	}

	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE aid_requests SET
			status = $1, precheck_reason = $2, override_required = $3,
			override_approved = $4, clarification_note = $5,
			clarification_response = $6, rejection_reason = $7,
			verified_by = $8, verified_at = $9,
			second_approved_by = $10, second_approved_at = $11,
			reserved_amount = $12, reserved_at = $13,
			disbursed_by = $14, disbursed_at = $15,
			items = $16, disbursements = $17, updated_at = $18,
			version = version + 1
		WHERE id = $19 AND version = $20`,
		string(request.Status), request.PrecheckReason, request.OverrideRequired,
		request.OverrideApproved, request.ClarificationNote,
		request.ClarificationResponse, request.RejectionReason,
		nullActor(request.VerifiedBy), nullTime(request.VerifiedAt),
		nullActor(request.SecondApprovedBy), nullTime(request.SecondApprovedAt),
		request.ReservedAmount, nullTime(request.ReservedAt),
		nullActor(request.DisbursedBy), nullTime(request.DisbursedAt),
		items, disbursements, request.UpdatedAt,
		request.ID.String(), request.Version,
	)
	if err != nil {
		return fmt.Errorf("update aid request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update aid request: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	request.Version++
	return nil
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requester id.ActorID) ([]*models.AidRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM aid_requests
		 WHERE requester_id = $1 ORDER BY created_at DESC, id DESC`,
		requester.String())
}

func (s *PostgresStore) ListByUniversity(ctx context.Context, university id.University) ([]*models.AidRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM aid_requests
		 WHERE university = $1 ORDER BY created_at DESC, id DESC`,
		university.String())
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.AidRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM aid_requests
		 WHERE status = $1
		 ORDER BY COALESCE(verified_at, created_at) ASC, id ASC`,
		string(status))
}

func (s *PostgresStore) ListByRequesterCategorySince(ctx context.Context, requester id.ActorID, category models.Category, since time.Time) ([]*models.AidRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM aid_requests
		 WHERE requester_id = $1 AND category = $2 AND created_at >= $3
		 ORDER BY created_at DESC, id DESC`,
		requester.String(), string(category), since)
}

func (s *PostgresStore) SumReserved(ctx context.Context) (int64, error) {
	var total int64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(reserved_amount), 0) FROM aid_requests
		WHERE kind = $1 AND status = $2`,
		string(models.KindFinancial), string(models.StatusSecondApprovalPending),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum reservations: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.AidRequest, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list aid requests: %w", err)
	}
	defer rows.Close()

	var out []*models.AidRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, request)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.AidRequest, error) {
	var (
		r                  models.AidRequest
		rawID, requesterID string
		category, kind     string
		status             string
		items, disburse    []byte
		verifiedBy         sql.NullString
		verifiedAt         sql.NullTime
		secondBy           sql.NullString
		secondAt           sql.NullTime
		reservedAt         sql.NullTime
		disbursedBy        sql.NullString
		disbursedAt        sql.NullTime
	)
	err := row.Scan(
		&rawID, &requesterID, (*string)(&r.University), &category, &kind, &r.TierLabel,
		&r.AmountMin, &r.AmountMax, &items, &r.Justification, &status, &r.PrecheckReason,
		&r.OverrideRequired, &r.OverrideApproved, &r.ClarificationNote,
		&r.ClarificationResponse, &r.RejectionReason, &verifiedBy, &verifiedAt,
		&secondBy, &secondAt, &r.ReservedAmount, &reservedAt,
		&disbursedBy, &disbursedAt, &disburse, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse request id: %w", err)
	}
	r.ID = id.RequestID(parsedID)
	parsedRequester, err := uuid.Parse(requesterID)
	if err != nil {
		return nil, fmt.Errorf("parse requester id: %w", err)
	}
	r.RequesterID = id.ActorID(parsedRequester)
	r.Category = models.Category(category)
	r.Kind = models.RequestKind(kind)
	r.Status = models.RequestStatus(status)

	if err := json.Unmarshal(items, &r.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal(disburse, &r.Disbursements); err != nil {
		return nil, fmt.Errorf("unmarshal disbursements: %w", err)
	}

	r.VerifiedBy = actorFromNull(verifiedBy)
	r.SecondApprovedBy = actorFromNull(secondBy)
	r.DisbursedBy = actorFromNull(disbursedBy)
	r.VerifiedAt = timeFromNull(verifiedAt)
	r.SecondApprovedAt = timeFromNull(secondAt)
	r.ReservedAt = timeFromNull(reservedAt)
	r.DisbursedAt = timeFromNull(disbursedAt)
	return &r, nil
}

func nullActor(actor id.ActorID) sql.NullString {
	if actor.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: actor.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func actorFromNull(v sql.NullString) id.ActorID {
	if !v.Valid {
		return id.ActorID{}
	}
	parsed, err := uuid.Parse(v.String)
	if err != nil {
		return id.ActorID{}
	}
	return id.ActorID(parsed)
}

func timeFromNull(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
