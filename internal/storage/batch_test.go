package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

type fakeWriter struct {
	calls    []string
	existing map[string]bool
	nextID   int64
	failOn   string
}

func (f *fakeWriter) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failOn != "" && f.failOn == call {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeWriter) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeWriter) LockSubject(_ context.Context, hash string) error {
	return f.record("lock " + hash)
}

func (f *fakeWriter) GiaTypeID(_ context.Context, gia bank.GiaType) (int64, error) {
	return 1, f.record("gia " + string(gia))
}

func (f *fakeWriter) SubjectID(_ context.Context, subject bank.Subject) (int64, error) {
	return 7, f.record("subject " + subject.Hash)
}

func (f *fakeWriter) ThemeID(_ context.Context, _ int64, theme bank.ThemeRef) (int64, error) {
	return 100 + f.id(), f.record("theme " + theme.CodifierID)
}

func (f *fakeWriter) InsertProblem(_ context.Context, rec bank.ProblemRecord) (int64, bool, error) {
	if err := f.record("problem " + rec.ProblemID); err != nil {
		return 0, false, err
	}
	if f.existing[rec.ProblemID] {
		return 0, false, nil
	}
	return 1000 + f.id(), true, nil
}

func (f *fakeWriter) InsertFile(_ context.Context, _ int64, fileURL string) error {
	return f.record("file " + fileURL)
}

func (f *fakeWriter) LinkGiaType(_ context.Context, _, giaID int64) error {
	return f.record(fmt.Sprintf("link gia %d", giaID))
}

func (f *fakeWriter) LinkSubject(_ context.Context, _, subjectID int64) error {
	return f.record(fmt.Sprintf("link subject %d", subjectID))
}

func (f *fakeWriter) LinkTheme(_ context.Context, _, themeID int64) error {
	return f.record(fmt.Sprintf("link theme %d", themeID))
}

func testBatch() bank.Batch {
	t1 := bank.ThemeRef{CodifierID: "1.1", Name: "one"}
	t2 := bank.ThemeRef{CodifierID: "2.2", Name: "two"}
	return bank.Batch{
		GiaType: bank.GiaEGE,
		Subject: bank.Subject{Name: "Информатика", Hash: "HASH"},
		Records: []bank.ProblemRecord{
			{ProblemID: "P1", FileURLs: []string{"f1"}, Themes: []bank.ThemeRef{t1, t2, t1}},
			{ProblemID: "P2", Themes: []bank.ThemeRef{t2}},
		},
	}
}

func TestWriteBatchOrder(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	res, err := WriteBatch(context.Background(), w, testBatch())
	require.NoError(t, err)
	require.Equal(t, bank.BatchResult{Inserted: 2, InsertedIDs: []string{"P1", "P2"}}, res)
	require.Equal(t, []string{
		"lock HASH",
		"gia ege",
		"subject HASH",
		"theme 1.1",
		"theme 2.2",
		"problem P1",
		"file f1",
		"link gia 1",
		"link subject 7",
		"link theme 101",
		"link theme 102",
		"problem P2",
		"link gia 1",
		"link subject 7",
		"link theme 102",
	}, w.calls)
}

func TestWriteBatchSkipsExisting(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{existing: map[string]bool{"P1": true}}
	res, err := WriteBatch(context.Background(), w, testBatch())
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, []string{"P2"}, res.InsertedIDs)
	require.NotContains(t, w.calls, "file f1")
}

func TestWriteBatchFoldsDuplicateProblems(t *testing.T) {
	t.Parallel()

	t1 := bank.ThemeRef{CodifierID: "1.1", Name: "one"}
	t2 := bank.ThemeRef{CodifierID: "2.2", Name: "two"}
	w := &fakeWriter{}
	res, err := WriteBatch(context.Background(), w, bank.Batch{
		GiaType: bank.GiaEGE,
		Subject: bank.Subject{Name: "Информатика", Hash: "HASH"},
		Records: []bank.ProblemRecord{
			{ProblemID: "P1", Themes: []bank.ThemeRef{t1}},
			{ProblemID: "P1", Themes: []bank.ThemeRef{t2}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, bank.BatchResult{Inserted: 1, InsertedIDs: []string{"P1"}}, res)
	require.Equal(t, []string{
		"lock HASH",
		"gia ege",
		"subject HASH",
		"theme 1.1",
		"theme 2.2",
		"problem P1",
		"link gia 1",
		"link subject 7",
		"link theme 101",
		"link theme 102",
	}, w.calls)
}

func TestWriteBatchStopsOnFailure(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{failOn: "file f1"}
	_, err := WriteBatch(context.Background(), w, testBatch())
	require.Error(t, err)
	require.Contains(t, err.Error(), "P1")
	require.NotContains(t, w.calls, "problem P2")
}
