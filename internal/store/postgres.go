package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// notifyChannel carries change-feed notifications; the payload is the
// record path and the listener re-reads the document itself, keeping the
// payload well under the NOTIFY size limit.
const notifyChannel = "record_events"

// Postgres implements Store on a single versioned-record table. The
// version column provides the compare-and-retry primitive; LISTEN/NOTIFY
// feeds the change feed across server instances.
type Postgres struct {
	pool *pgxpool.Pool

	subMu sync.RWMutex
	subs  map[string]map[chan Event]struct{}
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool: pool,
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Migrate creates the records table.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			path    TEXT PRIMARY KEY,
			doc     JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1
		)
	`)
	if err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, path string, v any) error {
	raw, err := p.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) getRaw(ctx context.Context, path string) ([]byte, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM records WHERE path = $1`, path).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return doc, nil
}

func (p *Postgres) Put(ctx context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning put %s: %w", path, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO records (path, doc) VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, version = records.version + 1
	`, path, data)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return fmt.Errorf("notifying %s: %w", path, err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete %s: %w", path, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM records WHERE path = $1`, path)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
			return fmt.Errorf("notifying %s: %w", path, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT path, doc FROM records WHERE starts_with(path, $1)`, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var path string
		var doc []byte
		if err := rows.Scan(&path, &doc); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", prefix, err)
		}
		out[path] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", prefix, err)
	}
	return out, nil
}

func (p *Postgres) Transact(ctx context.Context, path string, fn TxFunc) (bool, error) {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		var current []byte
		var version int64
		err := p.pool.QueryRow(ctx,
			`SELECT doc, version FROM records WHERE path = $1`, path).Scan(&current, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			current, version = nil, 0
		} else if err != nil {
			return false, fmt.Errorf("reading %s: %w", path, err)
		}

		next, err := fn(current)
		if err == ErrAbort {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if next == nil && current == nil {
			return true, nil // deleting an absent record is a clean no-op
		}

		committed, err := p.writeConditional(ctx, path, version, next)
		if err != nil {
			return false, err
		}
		if committed {
			return true, nil
		}
		// Version moved under us; re-run fn against the fresh value.
	}
	return false, fmt.Errorf("transact %s after %d attempts: %w", path, maxTxAttempts, ErrContention)
}

// writeConditional attempts the compare-and-swap write. Reports false when
// the version check failed and the caller should retry.
func (p *Postgres) writeConditional(ctx context.Context, path string, version int64, next []byte) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transact %s: %w", path, err)
	}
	defer tx.Rollback(ctx)

	var tag pgconn.CommandTag
	switch {
	case version == 0:
		tag, err = tx.Exec(ctx, `
			INSERT INTO records (path, doc) VALUES ($1, $2)
			ON CONFLICT (path) DO NOTHING
		`, path, next)
	case next == nil:
		tag, err = tx.Exec(ctx,
			`DELETE FROM records WHERE path = $1 AND version = $2`, path, version)
	default:
		tag, err = tx.Exec(ctx, `
			UPDATE records SET doc = $2, version = version + 1
			WHERE path = $1 AND version = $3
		`, path, next, version)
	}
	if err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return false, fmt.Errorf("notifying %s: %w", path, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing %s: %w", path, err)
	}
	return true, nil
}

func (p *Postgres) Watch(prefix string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	p.subMu.Lock()
	if p.subs[prefix] == nil {
		p.subs[prefix] = make(map[chan Event]struct{})
	}
	p.subs[prefix][ch] = struct{}{}
	p.subMu.Unlock()

	cancel := func() {
		p.subMu.Lock()
		delete(p.subs[prefix], ch)
		if len(p.subs[prefix]) == 0 {
			delete(p.subs, prefix)
		}
		p.subMu.Unlock()
	}
	return ch, cancel
}

// Run blocks on a dedicated LISTEN connection, dispatching notifications
// to watchers until ctx is cancelled.
func (p *Postgres) Run(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return fmt.Errorf("listening on %s: %w", notifyChannel, err)
	}

	for {
		note, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("waiting for notification: %w", err)
		}
		path := note.Payload
		data, err := p.getRaw(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("change feed re-read failed")
			continue
		}
		p.publish(Event{Path: path, Data: data})
	}
}

func (p *Postgres) publish(ev Event) {
	p.subMu.RLock()
	for prefix, chans := range p.subs {
		if !strings.HasPrefix(ev.Path, prefix) {
			continue
		}
		for ch := range chans {
			select {
			case ch <- ev:
			default:
			}
		}
	}
	p.subMu.RUnlock()
}
