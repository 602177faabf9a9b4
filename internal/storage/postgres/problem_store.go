// Package postgres provides the Postgres-backed problem store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/metrics"
	"github.com/JakeFAU/fipibank-harvester/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type Pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// ProblemStore implements bank.Store on Postgres.
type ProblemStore struct {
	pool   Pool
	logger *zap.Logger
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*ProblemStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool Pool, logger *zap.Logger) (*ProblemStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProblemStore{pool: pool, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *ProblemStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *ProblemStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables if absent and seeds the gia types.
func (s *ProblemStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	for _, gia := range bank.AllGiaTypes() {
		if _, err := s.pool.Exec(ctx, seedGiaTypeSQL, string(gia)); err != nil {
			return fmt.Errorf("seed gia type %s: %w", gia, err)
		}
	}
	return nil
}

// UpsertBatch persists one subject batch in a single transaction. Problem ids
// already stored are skipped and their rows are left untouched.
func (s *ProblemStore) UpsertBatch(ctx context.Context, batch bank.Batch) (bank.BatchResult, error) {
	if err := batch.Validate(); err != nil {
		return bank.BatchResult{}, err
	}
	if len(batch.Records) == 0 {
		return bank.BatchResult{}, nil
	}

	result, err := s.upsert(ctx, batch)
	if err != nil {
		metrics.ObserveBatch("failed")
		return bank.BatchResult{}, &bank.BatchError{SubjectHash: batch.Subject.Hash, Err: err}
	}
	metrics.ObserveBatch("committed")
	metrics.ObserveProblems(string(batch.GiaType), result.Inserted, result.Skipped)
	s.logger.Info("batch committed",
		zap.String("subject_hash", batch.Subject.Hash),
		zap.String("gia_type", string(batch.GiaType)),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *ProblemStore) upsert(ctx context.Context, batch bank.Batch) (result bank.BatchResult, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	result, err = storage.WriteBatch(ctx, txWriter{tx: tx}, batch)
	if err != nil {
		return bank.BatchResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return bank.BatchResult{}, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

// ProblemsByTheme lists problems of a gia type and subject tagged with codifierID.
func (s *ProblemStore) ProblemsByTheme(
	ctx context.Context,
	gia bank.GiaType,
	subjectName, codifierID string,
) ([]bank.StoredProblem, error) {
	rows, err := s.pool.Query(ctx, problemsByThemeSQL, string(gia), subjectName, codifierID)
	if err != nil {
		return nil, fmt.Errorf("query problems by theme: %w", err)
	}
	return collectProblems(rows)
}

// ProblemsByExamNumber lists problems annotated with examNumber.
func (s *ProblemStore) ProblemsByExamNumber(ctx context.Context, examNumber int) ([]bank.StoredProblem, error) {
	rows, err := s.pool.Query(ctx, problemsByExamNumberSQL, examNumber)
	if err != nil {
		return nil, fmt.Errorf("query problems by exam number: %w", err)
	}
	return collectProblems(rows)
}

// SetExamNumber annotates problemIDs with examNumber, or clears it when nil.
func (s *ProblemStore) SetExamNumber(ctx context.Context, examNumber *int, problemIDs []string) (int64, error) {
	if len(problemIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, setExamNumberSQL, examNumber, problemIDs)
	if err != nil {
		return 0, fmt.Errorf("set exam number: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectProblems(rows pgx.Rows) ([]bank.StoredProblem, error) {
	defer rows.Close()
	problems := make([]bank.StoredProblem, 0)
	for rows.Next() {
		var (
			p          bank.StoredProblem
			examNumber *int32
		)
		if err := rows.Scan(&p.ProblemID, &p.URL, &p.ConditionHTML, &examNumber); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		if examNumber != nil {
			n := int(*examNumber)
			p.ExamNumber = &n
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problems: %w", err)
	}
	return problems, nil
}

// txWriter runs the batch statements on a pgx transaction.
type txWriter struct {
	tx pgx.Tx
}

func (w txWriter) LockSubject(ctx context.Context, subjectHash string) error {
	_, err := w.tx.Exec(ctx, lockSubjectSQL, subjectHash)
	return err
}

func (w txWriter) GiaTypeID(ctx context.Context, gia bank.GiaType) (int64, error) {
	return w.returningID(ctx, giaTypeIDSQL, string(gia))
}

func (w txWriter) SubjectID(ctx context.Context, subject bank.Subject) (int64, error) {
	return w.returningID(ctx, upsertSubjectSQL, subject.Name, subject.Hash)
}

func (w txWriter) ThemeID(ctx context.Context, subjectID int64, theme bank.ThemeRef) (int64, error) {
	return w.returningID(ctx, upsertThemeSQL, subjectID, theme.CodifierID, theme.Name)
}

func (w txWriter) InsertProblem(ctx context.Context, rec bank.ProblemRecord) (int64, bool, error) {
	id, err := w.returningID(ctx, insertProblemSQL, rec.ProblemID, rec.URL, rec.ConditionHTML)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (w txWriter) InsertFile(ctx context.Context, problemRowID int64, fileURL string) error {
	_, err := w.tx.Exec(ctx, insertFileSQL, problemRowID, fileURL)
	return err
}

func (w txWriter) LinkGiaType(ctx context.Context, problemRowID, giaTypeID int64) error {
	_, err := w.tx.Exec(ctx, linkGiaTypeSQL, problemRowID, giaTypeID)
	return err
}

func (w txWriter) LinkSubject(ctx context.Context, problemRowID, subjectID int64) error {
	_, err := w.tx.Exec(ctx, linkSubjectSQL, problemRowID, subjectID)
	return err
}

func (w txWriter) LinkTheme(ctx context.Context, problemRowID, themeID int64) error {
	_, err := w.tx.Exec(ctx, linkThemeSQL, problemRowID, themeID)
	return err
}

func (w txWriter) returningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := w.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

var _ bank.Store = (*ProblemStore)(nil)
