package party

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the handlers use, extracted so tests can
// substitute a mock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		log.Printf("watchparty: migrate pgcrypto: %v", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS parties(
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			host_session_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS party_members(
			party_id uuid NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
			session_id TEXT NOT NULL,
			user_id TEXT,
			name TEXT NOT NULL DEFAULT '',
			is_host BOOLEAN NOT NULL DEFAULT false,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY(party_id, session_id)
		)
	`); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS queue_items(
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			party_id uuid NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
			position DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			type TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			note_content TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			is_completed BOOLEAN NOT NULL DEFAULT false,
			completed_at TIMESTAMPTZ,
			completed_by_user_id TEXT,
			due_date TIMESTAMPTZ,
			added_by_session_id TEXT NOT NULL,
			added_by_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_queue_items_party_position
		ON queue_items(party_id, position)
	`); err != nil {
		log.Printf("watchparty: migrate queue index: %v", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS party_invites(
			party_id uuid NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
			to_session_id TEXT NOT NULL,
			to_name TEXT NOT NULL DEFAULT '',
			invited_by_session_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY(party_id, to_session_id)
		)
	`); err != nil {
		return err
	}

	return nil
}

const queueItemColumns = `id, party_id, position, status, type,
	url, title, note_content, image_url,
	is_completed, completed_at, completed_by_user_id, due_date,
	added_by_session_id, added_by_name, created_at, updated_at`

func scanQueueItem(row pgx.Row, it *QueueItem) error {
	return row.Scan(
		&it.ID, &it.PartyID, &it.Position, &it.Status, &it.Type,
		&it.URL, &it.Title, &it.NoteContent, &it.ImageURL,
		&it.IsCompleted, &it.CompletedAt, &it.CompletedByUserID, &it.DueDate,
		&it.AddedBySessionID, &it.AddedByName, &it.CreatedAt, &it.UpdatedAt,
	)
}

// isUniqueViolation reports a Postgres 23505 error (duplicate key race).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
