package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS parties (
            id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL DEFAULT '',
            push_token TEXT,
            live_channel_id TEXT,
            rate_exempt BOOLEAN DEFAULT FALSE,
            notifications_enabled BOOLEAN DEFAULT TRUE,
            last_seen_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS pairings (
            id SERIAL PRIMARY KEY,
            party_a TEXT NOT NULL REFERENCES parties(id),
            party_b TEXT NOT NULL REFERENCES parties(id),
            created_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(party_a, party_b)
        );`,
		`CREATE TABLE IF NOT EXISTS invite_codes (
            code TEXT PRIMARY KEY,
            issuer_party_id TEXT NOT NULL REFERENCES parties(id),
            created_at TIMESTAMPTZ DEFAULT NOW(),
            expires_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS moments (
            id UUID PRIMARY KEY,
            pairing_id INT NOT NULL REFERENCES pairings(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            client_moment_id TEXT NOT NULL UNIQUE,
            payload BYTEA NOT NULL,
            live_sent BOOLEAN NOT NULL DEFAULT FALSE,
            push_sent BOOLEAN NOT NULL DEFAULT FALSE,
            rate_remaining INT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS moment_sends (
            id SERIAL PRIMARY KEY,
            sender_id TEXT NOT NULL,
            sent_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS delivery_tasks (
            id SERIAL PRIMARY KEY,
            target_party_id TEXT NOT NULL,
            moment_id UUID NOT NULL,
            payload BYTEA NOT NULL,
            attempts INT DEFAULT 0,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            expires_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_pairings_party_a ON pairings(party_a);`,
		`CREATE INDEX IF NOT EXISTS idx_pairings_party_b ON pairings(party_b);`,
		`CREATE INDEX IF NOT EXISTS idx_invite_codes_expires_at ON invite_codes(expires_at);`,
		`CREATE INDEX IF NOT EXISTS idx_moments_pairing_id ON moments(pairing_id);`,
		`CREATE INDEX IF NOT EXISTS idx_moment_sends_sender ON moment_sends(sender_id, sent_at);`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_tasks_target ON delivery_tasks(target_party_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_tasks_expires_at ON delivery_tasks(expires_at);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
