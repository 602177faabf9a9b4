// Package harvest runs the discovery, fetch, reassembly and persistence
// pipeline for one invocation.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/metrics"
	"github.com/JakeFAU/fipibank-harvester/internal/parser"
	"github.com/JakeFAU/fipibank-harvester/internal/policy/pacing"
	"github.com/JakeFAU/fipibank-harvester/internal/record"
)

// Fetch modes for per-theme listing pages.
const (
	FetchModeConcurrent = "concurrent"
	FetchModeSequential = "sequential"
)

// Clock reports wall time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls Harvester behavior.
type Config struct {
	GiaTypes               []bank.GiaType
	Subjects               []string
	FetchMode              string
	FetchConcurrency       int
	DiscoveryConcurrency   int
	ContinueOnSubjectError bool
	HostTemplate           string
	Topic                  string
}

// Harvester wires the pipeline stages together.
type Harvester struct {
	fetcher   bank.Fetcher
	store     bank.ProblemStore
	pacer     pacing.Pacer
	publisher bank.Publisher
	clock     Clock
	ids       IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// SubjectReport is the outcome for one subject.
type SubjectReport struct {
	GiaType  bank.GiaType
	Subject  bank.Subject
	Themes   int
	Problems int
	Result   bank.BatchResult
	Err      error
	Duration time.Duration
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Subjects []SubjectReport
	Inserted int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// New constructs a Harvester. A nil publisher disables notifications and a
// nil pacer never waits.
func New(
	fetcher bank.Fetcher,
	store bank.ProblemStore,
	pacer pacing.Pacer,
	publisher bank.Publisher,
	clock Clock,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pacer == nil {
		pacer = pacing.None{}
	}
	if len(cfg.GiaTypes) == 0 {
		cfg.GiaTypes = []bank.GiaType{bank.GiaEGE}
	}
	if cfg.FetchMode == "" {
		cfg.FetchMode = FetchModeSequential
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}
	if cfg.DiscoveryConcurrency <= 0 {
		cfg.DiscoveryConcurrency = 1
	}
	return &Harvester{
		fetcher:   fetcher,
		store:     store,
		pacer:     pacer,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run harvests every configured gia type. Subjects are persisted one batch
// at a time; batches committed before a failure stay committed.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	runID, err := h.ids.NewID()
	if err != nil {
		return Summary{}, err
	}
	start := h.clock.Now()
	summary := Summary{RunID: runID}
	logger := h.logger.With(zap.String("run_id", runID))
	logger.Info("harvest started",
		zap.Strings("gia_types", giaStrings(h.cfg.GiaTypes)),
		zap.Strings("subjects", h.cfg.Subjects),
		zap.String("fetch_mode", h.cfg.FetchMode),
	)

	var runErr error
	for _, gia := range h.cfg.GiaTypes {
		if err := h.runGia(ctx, runID, gia, &summary, logger); err != nil {
			runErr = err
			break
		}
	}

	summary.Duration = h.clock.Since(start)
	fields := []zap.Field{
		zap.Int("subjects", len(summary.Subjects)),
		zap.Int("inserted", summary.Inserted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	}
	if runErr != nil {
		logger.Error("harvest aborted", append(fields, zap.Error(runErr))...)
		return summary, runErr
	}
	logger.Info("harvest finished", fields...)
	return summary, nil
}

func (h *Harvester) runGia(
	ctx context.Context,
	runID string,
	gia bank.GiaType,
	summary *Summary,
	logger *zap.Logger,
) error {
	endpoints := bank.NewEndpoints(h.cfg.HostTemplate, gia)
	logger = logger.With(zap.String("gia_type", string(gia)))

	subjects, err := h.discoverSubjects(ctx, endpoints)
	if err != nil {
		return fmt.Errorf("discover %s subjects: %w", gia, err)
	}
	subjects = filterSubjects(subjects, h.cfg.Subjects)
	if len(subjects) == 0 {
		logger.Warn("no subjects matched", zap.Strings("filter", h.cfg.Subjects))
		return nil
	}

	themes, err := h.discoverThemes(ctx, endpoints, subjects)
	if err != nil {
		return fmt.Errorf("discover %s themes: %w", gia, err)
	}

	builder := record.NewBuilder(endpoints)
	for i, subject := range subjects {
		if err := ctx.Err(); err != nil {
			return err
		}
		report := h.harvestSubject(ctx, runID, endpoints, builder, subject, themes[i], logger)
		summary.Subjects = append(summary.Subjects, report)
		summary.Inserted += report.Result.Inserted
		summary.Skipped += report.Result.Skipped
		if report.Err == nil {
			continue
		}
		summary.Failed++
		if ctx.Err() != nil || !h.cfg.ContinueOnSubjectError {
			return fmt.Errorf("subject %q: %w", subject.Name, report.Err)
		}
	}
	return nil
}

func (h *Harvester) discoverSubjects(ctx context.Context, endpoints bank.Endpoints) ([]bank.Subject, error) {
	body, err := h.fetchPage(ctx, endpoints.LandingRequest())
	if err != nil {
		return nil, err
	}
	return parser.SubjectIndex(body)
}

// discoverThemes fetches every subject's theme index concurrently. Results
// are index-addressed so they line up with subjects.
func (h *Harvester) discoverThemes(
	ctx context.Context,
	endpoints bank.Endpoints,
	subjects []bank.Subject,
) ([][]bank.ThemeRef, error) {
	themes := make([][]bank.ThemeRef, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.DiscoveryConcurrency)
	for i, subject := range subjects {
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			if err := h.pacer.Wait(gctx); err != nil {
				return err
			}
			body, err := h.fetchPage(gctx, endpoints.ThemeIndexRequest(subject.Hash))
			if err != nil {
				return fmt.Errorf("subject %q: %w", subject.Name, err)
			}
			refs, err := parser.ThemeIndex(body)
			if err != nil {
				return fmt.Errorf("subject %q: %w", subject.Name, err)
			}
			themes[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return themes, nil
}

func (h *Harvester) harvestSubject(
	ctx context.Context,
	runID string,
	endpoints bank.Endpoints,
	builder *record.Builder,
	subject bank.Subject,
	themes []bank.ThemeRef,
	logger *zap.Logger,
) SubjectReport {
	start := h.clock.Now()
	gia := endpoints.GiaType
	report := SubjectReport{GiaType: gia, Subject: subject, Themes: len(themes)}
	logger = logger.With(zap.String("subject_hash", subject.Hash), zap.String("subject", subject.Name))

	perTheme, err := h.fetchListings(ctx, endpoints, builder, subject, themes, logger)
	if err != nil {
		return h.failSubject(report, start, err, logger)
	}

	var observed []bank.ProblemRecord
	for _, records := range perTheme {
		observed = append(observed, records...)
	}
	records := record.Aggregate(observed)
	report.Problems = len(records)

	result, err := h.store.UpsertBatch(ctx, bank.Batch{GiaType: gia, Subject: subject, Records: records})
	if err != nil {
		return h.failSubject(report, start, err, logger)
	}
	report.Result = result
	report.Duration = h.clock.Since(start)
	metrics.ObserveSubject(string(gia), "ok")
	logger.Info("subject harvested",
		zap.Int("themes", report.Themes),
		zap.Int("problems", report.Problems),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", report.Duration),
	)
	h.notify(ctx, runID, gia, subject, result, logger)
	return report
}

func (h *Harvester) failSubject(report SubjectReport, start time.Time, err error, logger *zap.Logger) SubjectReport {
	report.Err = err
	report.Duration = h.clock.Since(start)
	metrics.ObserveSubject(string(report.GiaType), "failed")
	logger.Error("subject failed", zap.Error(err), zap.Duration("duration", report.Duration))
	return report
}

// fetchListings fetches one listing page per theme and returns the tagged
// records per theme, in theme order.
func (h *Harvester) fetchListings(
	ctx context.Context,
	endpoints bank.Endpoints,
	builder *record.Builder,
	subject bank.Subject,
	themes []bank.ThemeRef,
	logger *zap.Logger,
) ([][]bank.ProblemRecord, error) {
	out := make([][]bank.ProblemRecord, len(themes))
	fetchTheme := func(ctx context.Context, i int) error {
		if err := h.pacer.Wait(ctx); err != nil {
			return err
		}
		records, err := h.themeRecords(ctx, endpoints, builder, subject, themes[i], logger)
		if err != nil {
			return fmt.Errorf("theme %s: %w", themes[i].CodifierID, err)
		}
		out[i] = records
		return nil
	}

	if h.cfg.FetchMode != FetchModeConcurrent {
		for i := range themes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := fetchTheme(ctx, i); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.FetchConcurrency)
	for i := range themes {
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			return fetchTheme(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Harvester) themeRecords(
	ctx context.Context,
	endpoints bank.Endpoints,
	builder *record.Builder,
	subject bank.Subject,
	theme bank.ThemeRef,
	logger *zap.Logger,
) ([]bank.ProblemRecord, error) {
	body, err := h.fetchPage(ctx, endpoints.ListingRequest(subject.Hash, []string{theme.CodifierID}))
	if err != nil {
		return nil, err
	}
	cards, err := parser.Listing(body)
	if err != nil {
		return nil, err
	}
	records, err := builder.BuildAll(cards, subject)
	if err != nil {
		return nil, err
	}
	record.Tag(records, theme)
	logger.Debug("theme listing parsed",
		zap.String("theme", theme.CodifierID),
		zap.Int("cards", len(cards)),
	)
	return records, nil
}

func (h *Harvester) fetchPage(ctx context.Context, req bank.FetchRequest) ([]byte, error) {
	resp, err := h.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", req.FullURL(), resp.StatusCode)
	}
	return resp.Body, nil
}

func (h *Harvester) notify(
	ctx context.Context,
	runID string,
	gia bank.GiaType,
	subject bank.Subject,
	result bank.BatchResult,
	logger *zap.Logger,
) {
	if h.publisher == nil || h.cfg.Topic == "" {
		return
	}
	event := bank.BatchEvent{
		RunID:       runID,
		GiaType:     gia,
		SubjectName: subject.Name,
		SubjectHash: subject.Hash,
		Inserted:    result.Inserted,
		Skipped:     result.Skipped,
		InsertedIDs: result.InsertedIDs,
		CommittedAt: h.clock.Now(),
	}
	id, err := h.publisher.Publish(ctx, h.cfg.Topic, event)
	if err != nil {
		logger.Warn("batch notification failed", zap.Error(err))
		return
	}
	logger.Debug("batch notification published", zap.String("message_id", id))
}

// filterSubjects keeps subjects whose name matches one of names, compared
// case-insensitively. An empty filter keeps everything.
func filterSubjects(subjects []bank.Subject, names []string) []bank.Subject {
	if len(names) == 0 {
		return subjects
	}
	out := make([]bank.Subject, 0, len(names))
	for _, s := range subjects {
		for _, name := range names {
			if strings.EqualFold(strings.TrimSpace(name), s.Name) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func giaStrings(gias []bank.GiaType) []string {
	out := make([]string, len(gias))
	for i, g := range gias {
		out[i] = string(g)
	}
	return out
}

// IsStructural reports whether err came from a page layout change.
func IsStructural(err error) bool {
	return errors.Is(err, bank.ErrStructure)
}
