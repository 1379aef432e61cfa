package relation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// SQLStore is a Store backed by the relation tables of the nfops database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open, migrated database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Join creates the channel. Joining an existing channel keeps its data.
func (s *SQLStore) Join(ctx context.Context, ch Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO channels (id, endpoint, provider, consumer) VALUES (?, ?, ?, ?)",
		ch.ID(), ch.Endpoint, ch.Provider, ch.Consumer,
	)
	if err != nil {
		return fmt.Errorf("failed to join channel %s: %w", ch.ID(), err)
	}
	return nil
}

// Break removes the channel and all its data.
func (s *SQLStore) Break(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM channel_data WHERE channel_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear channel %s: %w", id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to break channel %s: %w", id, err)
	}
	return tx.Commit()
}

// Exists reports whether the channel is joined.
func (s *SQLStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels WHERE id = ?", id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Read returns one side of the channel. An absent channel reads as empty.
func (s *SQLStore) Read(ctx context.Context, id string, side Side) (map[string]string, error) {
	if err := checkSide(side); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM channel_data WHERE channel_id = ? AND side = ?",
		id, side.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	data := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		data[k] = v
	}
	return data, rows.Err()
}

// Write merges data into one side of the channel.
func (s *SQLStore) Write(ctx context.Context, id string, side Side, data map[string]string) (err error) {
	if err := checkSide(side); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var n int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels WHERE id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("%w: %s", ErrChannelNotFound, id)
		return err
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO channel_data (channel_id, side, key, value) VALUES (?, ?, ?, ?)
			ON CONFLICT (channel_id, side, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			id, side.String(), k, data[k],
		)
		if err != nil {
			return fmt.Errorf("failed to write %s to channel %s: %w", k, id, err)
		}
	}
	return tx.Commit()
}

// Channels returns every joined channel sorted by ID.
func (s *SQLStore) Channels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT endpoint, provider, consumer FROM channels ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.Endpoint, &ch.Provider, &ch.Consumer); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
