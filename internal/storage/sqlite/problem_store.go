// Package sqlite provides the SQLite-backed problem store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/metrics"
	"github.com/JakeFAU/fipibank-harvester/internal/storage"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// ProblemStore implements bank.Store on a single SQLite file.
type ProblemStore struct {
	db     *sql.DB
	locks  storage.KeyedMutex
	logger *zap.Logger
}

// Open creates or opens the database at dsn. SQLite allows one writer, so
// the pool is pinned to a single connection.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*ProblemStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	memory := dsn == MemoryDSN || strings.Contains(dsn, "mode=memory")
	if !memory && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &ProblemStore{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *ProblemStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *ProblemStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables if absent and seeds the gia types.
func (s *ProblemStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	for _, gia := range bank.AllGiaTypes() {
		if _, err := s.db.ExecContext(ctx, seedGiaTypeSQL, string(gia)); err != nil {
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

	unlock := s.locks.Lock(batch.Subject.Hash)
	defer unlock()

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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	result, err = storage.WriteBatch(ctx, txWriter{tx: tx}, batch)
	if err != nil {
		return bank.BatchResult{}, err
	}
	if err = tx.Commit(); err != nil {
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
	rows, err := s.db.QueryContext(ctx, problemsByThemeSQL, string(gia), subjectName, codifierID)
	if err != nil {
		return nil, fmt.Errorf("query problems by theme: %w", err)
	}
	return collectProblems(rows)
}

// ProblemsByExamNumber lists problems annotated with examNumber.
func (s *ProblemStore) ProblemsByExamNumber(ctx context.Context, examNumber int) ([]bank.StoredProblem, error) {
	rows, err := s.db.QueryContext(ctx, problemsByExamNumberSQL, examNumber)
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
	args := make([]any, 0, len(problemIDs)+1)
	if examNumber != nil {
		args = append(args, *examNumber)
	} else {
		args = append(args, nil)
	}
	for _, id := range problemIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(problemIDs)), ", ")
	query := fmt.Sprintf(`UPDATE fipibank_problems SET exam_number = ? WHERE problem_id IN (%s)`, placeholders)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("set exam number: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func collectProblems(rows *sql.Rows) ([]bank.StoredProblem, error) {
	defer rows.Close()
	problems := make([]bank.StoredProblem, 0)
	for rows.Next() {
		var (
			p          bank.StoredProblem
			examNumber sql.NullInt64
		)
		if err := rows.Scan(&p.ProblemID, &p.URL, &p.ConditionHTML, &examNumber); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		if examNumber.Valid {
			n := int(examNumber.Int64)
			p.ExamNumber = &n
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problems: %w", err)
	}
	return problems, nil
}

// txWriter runs the batch statements on a database/sql transaction.
type txWriter struct {
	tx *sql.Tx
}

// LockSubject is a no-op: the store holds the subject lock around the transaction.
func (w txWriter) LockSubject(context.Context, string) error {
	return nil
}

func (w txWriter) GiaTypeID(ctx context.Context, gia bank.GiaType) (int64, error) {
	return w.returningID(ctx, upsertGiaTypeSQL, string(gia))
}

func (w txWriter) SubjectID(ctx context.Context, subject bank.Subject) (int64, error) {
	return w.returningID(ctx, upsertSubjectSQL, subject.Name, subject.Hash)
}

func (w txWriter) ThemeID(ctx context.Context, subjectID int64, theme bank.ThemeRef) (int64, error) {
	return w.returningID(ctx, upsertThemeSQL, subjectID, theme.CodifierID, theme.Name)
}

func (w txWriter) InsertProblem(ctx context.Context, rec bank.ProblemRecord) (int64, bool, error) {
	id, err := w.returningID(ctx, insertProblemSQL, rec.ProblemID, rec.URL, rec.ConditionHTML)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (w txWriter) InsertFile(ctx context.Context, problemRowID int64, fileURL string) error {
	_, err := w.tx.ExecContext(ctx, insertFileSQL, problemRowID, fileURL)
	return err
}

func (w txWriter) LinkGiaType(ctx context.Context, problemRowID, giaTypeID int64) error {
	_, err := w.tx.ExecContext(ctx, linkGiaTypeSQL, problemRowID, giaTypeID)
	return err
}

func (w txWriter) LinkSubject(ctx context.Context, problemRowID, subjectID int64) error {
	_, err := w.tx.ExecContext(ctx, linkSubjectSQL, problemRowID, subjectID)
	return err
}

func (w txWriter) LinkTheme(ctx context.Context, problemRowID, themeID int64) error {
	_, err := w.tx.ExecContext(ctx, linkThemeSQL, problemRowID, themeID)
	return err
}

func (w txWriter) returningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := w.tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

var _ bank.Store = (*ProblemStore)(nil)
