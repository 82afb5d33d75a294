// Package relational stores statistics, history and accounts through bun (Postgres or SQLite).
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"nikkei-quiz-service/internal/domain"
	"nikkei-quiz-service/internal/infra/memory"

	_ "modernc.org/sqlite" // SQLite driver.
)

// OpenPostgres returns a bun handle on the given DSN.
func OpenPostgres(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// OpenSQLite opens or creates the SQLite database at path.
// A single connection serializes writers, which SQLite needs anyway.
func OpenSQLite(path string) (*bun.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	sqldb, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Store implements app.StatsRepository and the account repository on bun.
type Store struct {
	db         *bun.DB
	historyCap int
	now        func() time.Time
	lockRows   bool
}

func NewStore(db *bun.DB, historyCap int) *Store {
	return NewStoreWithClock(db, historyCap, time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(db *bun.DB, historyCap int, now func() time.Time) *Store {
	if historyCap <= 0 {
		historyCap = memory.DefaultHistoryCap
	}
	return &Store{
		db:         db,
		historyCap: historyCap,
		now:        now,
		lockRows:   db.Dialect().Name() == dialect.PG,
	}
}

// ensureStats inserts the zeroed row unless one exists; the unique user_id decides races.
func (s *Store) ensureStats(ctx context.Context, db bun.IDB, identity domain.Identity) error {
	now := s.now()
	row := &StatsModel{
		UserID:      string(identity),
		Categories:  "{}",
		StartDate:   now,
		LastUpdated: now,
	}
	_, err := db.NewInsert().Model(row).
		On("CONFLICT (user_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	return err
}

func (s *Store) selectStats(ctx context.Context, db bun.IDB, identity domain.Identity, forUpdate bool) (*StatsModel, error) {
	row := new(StatsModel)
	q := db.NewSelect().Model(row).Where("user_id = ?", string(identity))
	if forUpdate && s.lockRows {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Store) GetOrCreate(ctx context.Context, identity domain.Identity) (domain.Stats, error) {
	if err := s.ensureStats(ctx, s.db, identity); err != nil {
		return domain.Stats{}, fmt.Errorf("ensure stats row: %w", err)
	}
	row, err := s.selectStats(ctx, s.db, identity, false)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	return row.toDomain()
}

func (s *Store) RecordAttempt(ctx context.Context, identity domain.Identity, attempt domain.Attempt) (domain.Stats, error) {
	var out domain.Stats
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		stats, row, err := s.lockedStats(ctx, tx, identity)
		if err != nil {
			return err
		}
		stats.Record(attempt.Category, attempt.IsCorrect, s.now())
		if err := row.apply(stats); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update stats: %w", err)
		}

		result, err := attemptModelFrom(identity, attempt)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(result).Exec(ctx); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		out = stats
		return nil
	})
	if err != nil {
		return domain.Stats{}, err
	}
	return out, nil
}

func (s *Store) Reset(ctx context.Context, identity domain.Identity) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		stats, row, err := s.lockedStats(ctx, tx, identity)
		if err != nil {
			return err
		}
		stats.Reset(s.now())
		if err := row.apply(stats); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("reset stats: %w", err)
		}
		if _, err := tx.NewDelete().Model((*AttemptModel)(nil)).Where("user_id = ?", string(identity)).Exec(ctx); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		return nil
	})
}

func (s *Store) History(ctx context.Context, identity domain.Identity, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = s.historyCap
	}
	var rows []AttemptModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", string(identity)).
		Order("answered_at DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Attempt, 0, len(rows))
	for i := range rows {
		attempt, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode options of attempt %d: %w", rows[i].ID, err)
		}
		out = append(out, attempt)
	}
	return out, nil
}

func (s *Store) lockedStats(ctx context.Context, tx bun.Tx, identity domain.Identity) (domain.Stats, *StatsModel, error) {
	if err := s.ensureStats(ctx, tx, identity); err != nil {
		return domain.Stats{}, nil, fmt.Errorf("ensure stats row: %w", err)
	}
	row, err := s.selectStats(ctx, tx, identity, true)
	if err != nil {
		return domain.Stats{}, nil, fmt.Errorf("lock stats: %w", err)
	}
	stats, err := row.toDomain()
	if err != nil {
		return domain.Stats{}, nil, fmt.Errorf("decode categories: %w", err)
	}
	return stats, row, nil
}

// CreateUser stores a new account; username and email are unique, case-insensitively.
func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := tx.NewSelect().
			Model((*UserModel)(nil)).
			Where("lower(username) = lower(?)", user.Username).
			WhereOr("lower(email) = lower(?)", user.Email).
			Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrUserExists
		}
		if _, err := tx.NewInsert().Model(userModelFrom(user)).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrUserExists
			}
			return err
		}
		return nil
	})
}

// FindUserByLogin matches a username or an email.
func (s *Store) FindUserByLogin(ctx context.Context, login string) (domain.User, error) {
	row := new(UserModel)
	err := s.db.NewSelect().
		Model(row).
		Where("lower(username) = lower(?)", login).
		WhereOr("lower(email) = lower(?)", login).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (domain.User, error) {
	row := new(UserModel)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*UserModel)(nil)).
		Set("last_login = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation()
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
