// Package store holds the shared PostgreSQL schema for the aid domain
// stores. Migrations are idempotent so startup can run them unconditionally.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS aid_requests (
	id UUID PRIMARY KEY,
	requester_id UUID NOT NULL,
	university TEXT NOT NULL,
	category TEXT NOT NULL,
	kind TEXT NOT NULL,
	tier_label TEXT NOT NULL DEFAULT '',
	amount_min BIGINT NOT NULL DEFAULT 0,
	amount_max BIGINT NOT NULL DEFAULT 0,
	items JSONB NOT NULL DEFAULT '[]',
	justification TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	precheck_reason TEXT NOT NULL DEFAULT '',
	override_required BOOLEAN NOT NULL DEFAULT FALSE,
	override_approved BOOLEAN NOT NULL DEFAULT FALSE,
	clarification_note TEXT NOT NULL DEFAULT '',
	clarification_response TEXT NOT NULL DEFAULT '',
	rejection_reason TEXT NOT NULL DEFAULT '',
	verified_by UUID,
	verified_at TIMESTAMPTZ,
	second_approved_by UUID,
	second_approved_at TIMESTAMPTZ,
	reserved_amount BIGINT NOT NULL DEFAULT 0,
	reserved_at TIMESTAMPTZ,
	disbursed_by UUID,
	disbursed_at TIMESTAMPTZ,
	disbursements JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS aid_requests_requester_category_idx
	ON aid_requests (requester_id, category, created_at);
CREATE INDEX IF NOT EXISTS aid_requests_university_idx
	ON aid_requests (university, created_at);
CREATE INDEX IF NOT EXISTS aid_requests_status_idx
	ON aid_requests (status);

CREATE TABLE IF NOT EXISTS donations (
	id UUID PRIMARY KEY,
	donor_id UUID NOT NULL,
	kind TEXT NOT NULL,
	amount BIGINT NOT NULL DEFAULT 0,
	disbursed_amount BIGINT NOT NULL DEFAULT 0,
	items JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	ledger JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	CONSTRAINT donations_no_overdisburse CHECK (disbursed_amount <= amount)
);

CREATE INDEX IF NOT EXISTS donations_fcfs_idx
	ON donations (kind, status, created_at, id);
CREATE UNIQUE INDEX IF NOT EXISTS donations_reference_idx
	ON donations (reference) WHERE reference <> '';
`

// Migrate creates the aid tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate aid schema: %w", err)
	}
	return nil
}
