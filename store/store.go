package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	models "storefront/model"
)

//go:embed migrations.sql
var migrationSQL string

// SQLStore is a Store backed by a session_values table. Each row holds one
// key of one session.
type SQLStore struct {
	DB     *sql.DB
	driver string
	now    func() time.Time

	// per-session mutexes so read-modify-write sequences in this process
	// don't interleave. Keys are session id -> *sync.Mutex
	locks sync.Map
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{DB: db, driver: driver, now: time.Now}
}

func (s *SQLStore) Close() error { return s.DB.Close() }

// Migrate creates the schema if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, migrationSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// lockForSession acquires the process-local lock for a session. Returns unlock func.
func (s *SQLStore) lockForSession(session string) func() {
	if v, ok := s.locks.Load(session); ok {
		m := v.(*sync.Mutex)
		m.Lock()
		return m.Unlock
	}
	actual, _ := s.locks.LoadOrStore(session, &sync.Mutex{})
	m := actual.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) get(ctx context.Context, q queryer, session, key string) (string, error) {
	var v string
	err := q.QueryRowContext(ctx,
		rebind(s.driver, `SELECT value FROM session_values WHERE session_id = ? AND item_key = ?`),
		session, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLStore) put(ctx context.Context, e execer, session, key, value string) error {
	_, err := e.ExecContext(ctx, rebind(s.driver, `
		INSERT INTO session_values (session_id, item_key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, item_key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`), session, key, value, s.now().UTC())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) del(ctx context.Context, e execer, session string, keys ...string) error {
	for _, k := range keys {
		if _, err := e.ExecContext(ctx,
			rebind(s.driver, `DELETE FROM session_values WHERE session_id = ? AND item_key = ?`),
			session, k,
		); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// withTx runs fn in a transaction and rolls back unless fn and the commit succeed.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SQLStore) Credential(ctx context.Context, session string) (string, error) {
	return s.get(ctx, s.DB, session, KeyCredential)
}

func (s *SQLStore) SetCredential(ctx context.Context, session, token string) error {
	return s.put(ctx, s.DB, session, KeyCredential, token)
}

func (s *SQLStore) SessionRef(ctx context.Context, session string) (string, error) {
	return s.get(ctx, s.DB, session, KeySessionRef)
}

func (s *SQLStore) SetSessionRef(ctx context.Context, session, ref string) error {
	return s.put(ctx, s.DB, session, KeySessionRef, ref)
}

func (s *SQLStore) ClearSessionRef(ctx context.Context, session string) error {
	return s.del(ctx, s.DB, session, KeySessionRef)
}

func (s *SQLStore) ClearSession(ctx context.Context, session string) error {
	return s.del(ctx, s.DB, session, KeyCredential, KeySessionRef)
}

// SaveStaging writes the staged list as a JSON array of CheckoutLineItem, with
// the stage-time total and timestamp alongside, in one transaction.
func (s *SQLStore) SaveStaging(ctx context.Context, session string, st models.CheckoutStaging) error {
	items := st.Items
	if items == nil {
		items = []models.CheckoutLineItem{}
	}
	list, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode checkout list: %w", err)
	}

	unlock := s.lockForSession(session)
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.put(ctx, tx, session, KeyCheckoutList, string(list)); err != nil {
			return err
		}
		if err := s.put(ctx, tx, session, KeyCheckoutTotal, st.TotalAmount.String()); err != nil {
			return err
		}
		return s.put(ctx, tx, session, KeyCheckoutStaged, st.StagedAt.UTC().Format(time.RFC3339Nano))
	})
}

// LoadStaging returns ErrNotFound when nothing is staged. A list stored
// without a total gets its total computed from the list.
func (s *SQLStore) LoadStaging(ctx context.Context, session string) (models.CheckoutStaging, error) {
	var st models.CheckoutStaging

	list, err := s.get(ctx, s.DB, session, KeyCheckoutList)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal([]byte(list), &st.Items); err != nil {
		return st, fmt.Errorf("decode checkout list: %w", err)
	}

	total, err := s.get(ctx, s.DB, session, KeyCheckoutTotal)
	switch {
	case errors.Is(err, ErrNotFound):
		st.TotalAmount = models.StagedTotal(st.Items)
	case err != nil:
		return st, err
	default:
		if st.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return st, fmt.Errorf("decode checkout total: %w", err)
		}
	}

	staged, err := s.get(ctx, s.DB, session, KeyCheckoutStaged)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return st, err
	}
	if staged != "" {
		if st.StagedAt, err = time.Parse(time.RFC3339Nano, staged); err != nil {
			return st, fmt.Errorf("decode staged time: %w", err)
		}
	}
	return st, nil
}

func (s *SQLStore) ClearStaging(ctx context.Context, session string) error {
	unlock := s.lockForSession(session)
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.del(ctx, tx, session, KeyCheckoutList, KeyCheckoutTotal, KeyCheckoutStaged)
	})
}

var _ Store = (*SQLStore)(nil)
