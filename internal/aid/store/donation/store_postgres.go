package donation

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

// PostgresStore persists donations in PostgreSQL. Consumption runs under a
// transaction with per-row version checks, so two concurrent matches never
// both win the same unit of a donation.
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

const donationColumns = `id, donor_id, kind, amount, disbursed_amount, items,
	status, reference, ledger, created_at, updated_at, version`

func (s *PostgresStore) Create(ctx context.Context, donation *models.Donation) error {
	items, err := json.Marshal(donation.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	ledger, err := json.Marshal(donation.Ledger)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	donation.Version = 1
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO donations (`+donationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		donation.ID.String(), donation.DonorID.String(), string(donation.Kind),
		donation.Amount, donation.DisbursedAmount, items,
		string(donation.Status), donation.Reference, ledger,
		donation.CreatedAt, donation.UpdatedAt, donation.Version,
	)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, donationID id.DonationID) (*models.Donation, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE id = $1`, donationID.String())
	donation, err := scanDonation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return donation, err
}

func (s *PostgresStore) GetByReference(ctx context.Context, reference string) (*models.Donation, error) {
	if reference == "" {
		return nil, sentinel.ErrNotFound
	}
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE reference = $1`, reference)
	donation, err := scanDonation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return donation, err
}

func (s *PostgresStore) Confirm(ctx context.Context, donationID id.DonationID) (*models.Donation, error) {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE donations SET status = $1, version = version + 1
		WHERE id = $2 AND status = $3`,
		string(models.DonationConfirmed), donationID.String(), string(models.DonationPending))
	if err != nil {
		return nil, fmt.Errorf("confirm donation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("confirm donation: %w", err)
	}
	if affected == 0 {
		// Either absent or not pending; disambiguate for the caller.
		if _, err := s.Get(ctx, donationID); err != nil {
			return nil, err
		}
		return nil, sentinel.ErrInvalidState
	}
	return s.Get(ctx, donationID)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Donation, error) {
	return s.list(ctx,
		`SELECT `+donationColumns+` FROM donations ORDER BY created_at DESC, id DESC`)
}

func (s *PostgresStore) ListEligible(ctx context.Context, kind models.RequestKind) ([]*models.Donation, error) {
	return s.list(ctx, `
		SELECT `+donationColumns+` FROM donations
		WHERE kind = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC, id ASC`,
		string(kind), string(models.DonationConfirmed), string(models.DonationPartiallyDisbursed))
}

// ApplyDebits consumes supply inside a transaction. Each row update is
// conditional on the version the plan was computed from; any miss rolls the
// whole batch back with sentinel.ErrConflict so the matcher re-plans.
func (s *PostgresStore) ApplyDebits(ctx context.Context, requestID id.RequestID, debits []models.DonationDebit, now time.Time) error {
	if t, ok := tx.From(ctx); ok {
		return s.applyDebits(ctx, t, requestID, debits, now)
	}

	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin debit tx: %w", err)
	}
	if err := s.applyDebits(ctx, t, requestID, debits, now); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit debit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) applyDebits(ctx context.Context, t *sql.Tx, requestID id.RequestID, debits []models.DonationDebit, now time.Time) error {
	for _, debit := range debits {
		row := t.QueryRowContext(ctx, `
			SELECT `+donationColumns+` FROM donations
			WHERE id = $1 FOR UPDATE`, debit.DonationID.String())
		donation, err := scanDonation(row)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		if donation.Version != debit.Version {
			return sentinel.ErrConflict
		}
		if !donation.Eligible() {
			return sentinel.ErrInvalidState
		}
		if debit.Amount > 0 && donation.RemainingAmount() < debit.Amount {
			return sentinel.ErrInsufficient
		}
		for _, item := range debit.Items {
			if donation.RemainingItem(item.Name) < item.Quantity {
				return sentinel.ErrInsufficient
			}
		}

		donation.DisbursedAmount += debit.Amount
		for _, item := range debit.Items {
			for i := range donation.Items {
				if donation.Items[i].Name == item.Name {
					donation.Items[i].DisbursedQuantity += item.Quantity
				}
			}
		}
		donation.Ledger = append(donation.Ledger, models.DonationLedgerEntry{
			RequestID: requestID,
			Amount:    debit.Amount,
			Items:     append([]models.RequestedItem(nil), debit.Items...),
			Timestamp: now,
		})
		donation.RecalcStatus()

		items, err := json.Marshal(donation.Items)
		if err != nil {
			return fmt.Errorf("marshal items: %w", err)
		}
		ledger, err := json.Marshal(donation.Ledger)
		if err != nil {
			return fmt.Errorf("marshal ledger: %w", err)
		}
		res, err := t.ExecContext(ctx, `
			UPDATE donations SET
				disbursed_amount = $1, items = $2, status = $3, ledger = $4,
				updated_at = $5, version = version + 1
			WHERE id = $6 AND version = $7`,
			donation.DisbursedAmount, items, string(donation.Status), ledger,
			now, donation.ID.String(), debit.Version,
		)
		if err != nil {
			return fmt.Errorf("apply debit: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("apply debit: %w", err)
		}
		if affected == 0 {
			return sentinel.ErrConflict
		}
	}
	return nil
}

// RevertDebits strips the request's ledger entries from every donation that
// carries one and restores the supply they consumed. Rows are locked for the
// duration; the update is unconditional since the revert is computed from
// the locked state itself.
func (s *PostgresStore) RevertDebits(ctx context.Context, requestID id.RequestID, now time.Time) error {
	if t, ok := tx.From(ctx); ok {
		return s.revertDebits(ctx, t, requestID, now)
	}

	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revert tx: %w", err)
	}
	if err := s.revertDebits(ctx, t, requestID, now); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit revert tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) revertDebits(ctx context.Context, t *sql.Tx, requestID id.RequestID, now time.Time) error {
	// Probe matches any ledger entry recorded for the request; the entry's
	// other fields are irrelevant to containment.
	probe, err := json.Marshal([]struct {
		RequestID id.RequestID `json:"request_id"`
	}{{requestID}})
	if err != nil {
		return fmt.Errorf("marshal revert probe: %w", err)
	}

	rows, err := t.QueryContext(ctx, `
		SELECT `+donationColumns+` FROM donations
		WHERE ledger @> $1 FOR UPDATE`, probe)
	if err != nil {
		return fmt.Errorf("find debited donations: %w", err)
	}
	var matched []*models.Donation
	for rows.Next() {
		donation, err := scanDonation(rows)
		if err != nil {
			rows.Close()
			return err
		}
		matched = append(matched, donation)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("find debited donations: %w", err)
	}

	for _, donation := range matched {
		kept := donation.Ledger[:0]
		for _, entry := range donation.Ledger {
			if entry.RequestID != requestID {
				kept = append(kept, entry)
				continue
			}
			donation.DisbursedAmount -= entry.Amount
			for _, item := range entry.Items {
				for i := range donation.Items {
					if donation.Items[i].Name == item.Name {
						donation.Items[i].DisbursedQuantity -= item.Quantity
					}
				}
			}
		}
		donation.Ledger = kept
		donation.RecalcStatus()

		items, err := json.Marshal(donation.Items)
		if err != nil {
			return fmt.Errorf("marshal items: %w", err)
		}
		ledger, err := json.Marshal(donation.Ledger)
		if err != nil {
			return fmt.Errorf("marshal ledger: %w", err)
		}
		if _, err := t.ExecContext(ctx, `
			UPDATE donations SET
				disbursed_amount = $1, items = $2, status = $3, ledger = $4,
				updated_at = $5, version = version + 1
			WHERE id = $6`,
			donation.DisbursedAmount, items, string(donation.Status), ledger,
			now, donation.ID.String(),
		); err != nil {
			return fmt.Errorf("revert debit: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Donation, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var out []*models.Donation
	for rows.Next() {
		donation, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, donation)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDonation(row scanner) (*models.Donation, error) {
	var (
		d             models.Donation
		rawID, donor  string
		kind, status  string
		items, ledger []byte
	)
	err := row.Scan(
		&rawID, &donor, &kind, &d.Amount, &d.DisbursedAmount, &items,
		&status, &d.Reference, &ledger, &d.CreatedAt, &d.UpdatedAt, &d.Version,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse donation id: %w", err)
	}
	d.ID = id.DonationID(parsedID)
	parsedDonor, err := uuid.Parse(donor)
	if err != nil {
		return nil, fmt.Errorf("parse donor id: %w", err)
	}
	d.DonorID = id.ActorID(parsedDonor)
	d.Kind = models.RequestKind(kind)
	d.Status = models.DonationStatus(status)

	if err := json.Unmarshal(items, &d.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal(ledger, &d.Ledger); err != nil {
		return nil, fmt.Errorf("unmarshal ledger: %w", err)
	}
	return &d, nil
}
