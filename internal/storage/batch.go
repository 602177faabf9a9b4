package storage

import (
	"context"
	"fmt"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/record"
)

// BatchWriter is the set of statements a backend runs inside one batch
// transaction. Every lookup is an insert-if-absent keyed on the natural key.
type BatchWriter interface {
	// LockSubject serializes concurrent batches of the same subject.
	LockSubject(ctx context.Context, subjectHash string) error
	GiaTypeID(ctx context.Context, gia bank.GiaType) (int64, error)
	// SubjectID never rewrites the stored name of an existing subject.
	SubjectID(ctx context.Context, subject bank.Subject) (int64, error)
	ThemeID(ctx context.Context, subjectID int64, theme bank.ThemeRef) (int64, error)
	// InsertProblem reports inserted=false when problem_id is already stored.
	InsertProblem(ctx context.Context, rec bank.ProblemRecord) (rowID int64, inserted bool, err error)
	InsertFile(ctx context.Context, problemRowID int64, fileURL string) error
	LinkGiaType(ctx context.Context, problemRowID, giaTypeID int64) error
	LinkSubject(ctx context.Context, problemRowID, subjectID int64) error
	LinkTheme(ctx context.Context, problemRowID, themeID int64) error
}

// WriteBatch runs the upsert protocol for one subject batch. Records sharing
// a problem id are folded into one before insertion. The caller owns the
// transaction and must roll back when an error is returned.
func WriteBatch(ctx context.Context, w BatchWriter, batch bank.Batch) (bank.BatchResult, error) {
	var result bank.BatchResult

	if err := w.LockSubject(ctx, batch.Subject.Hash); err != nil {
		return result, fmt.Errorf("lock subject: %w", err)
	}
	giaID, err := w.GiaTypeID(ctx, batch.GiaType)
	if err != nil {
		return result, fmt.Errorf("upsert gia type %s: %w", batch.GiaType, err)
	}
	subjectID, err := w.SubjectID(ctx, batch.Subject)
	if err != nil {
		return result, fmt.Errorf("upsert subject %s: %w", batch.Subject.Hash, err)
	}

	records := record.Aggregate(batch.Records)
	themeIDs := make(map[string]int64)
	for _, rec := range records {
		for _, theme := range rec.Themes {
			if _, ok := themeIDs[theme.CodifierID]; ok {
				continue
			}
			id, err := w.ThemeID(ctx, subjectID, theme)
			if err != nil {
				return result, fmt.Errorf("upsert theme %s: %w", theme.CodifierID, err)
			}
			themeIDs[theme.CodifierID] = id
		}
	}

	for _, rec := range records {
		rowID, inserted, err := w.InsertProblem(ctx, rec)
		if err != nil {
			return result, fmt.Errorf("insert problem %s: %w", rec.ProblemID, err)
		}
		if !inserted {
			result.Skipped++
			continue
		}
		if err := linkProblem(ctx, w, rowID, giaID, subjectID, rec, themeIDs); err != nil {
			return result, fmt.Errorf("link problem %s: %w", rec.ProblemID, err)
		}
		result.Inserted++
		result.InsertedIDs = append(result.InsertedIDs, rec.ProblemID)
	}
	return result, nil
}

func linkProblem(
	ctx context.Context,
	w BatchWriter,
	rowID, giaID, subjectID int64,
	rec bank.ProblemRecord,
	themeIDs map[string]int64,
) error {
	for _, fileURL := range rec.FileURLs {
		if err := w.InsertFile(ctx, rowID, fileURL); err != nil {
			return err
		}
	}
	if err := w.LinkGiaType(ctx, rowID, giaID); err != nil {
		return err
	}
	if err := w.LinkSubject(ctx, rowID, subjectID); err != nil {
		return err
	}
	linked := make(map[int64]struct{}, len(rec.Themes))
	for _, theme := range rec.Themes {
		themeID := themeIDs[theme.CodifierID]
		if _, ok := linked[themeID]; ok {
			continue
		}
		linked[themeID] = struct{}{}
		if err := w.LinkTheme(ctx, rowID, themeID); err != nil {
			return err
		}
	}
	return nil
}
