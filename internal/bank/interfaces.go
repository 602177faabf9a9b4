package bank

import (
	"context"
	"time"
)

// Fetcher fetches a bank page and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RetryPolicy decides whether and when a failed fetch is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// ProblemStore persists harvested batches.
type ProblemStore interface {
	// EnsureSchema creates the tables if absent and seeds the gia types.
	EnsureSchema(ctx context.Context) error
	// UpsertBatch inserts new problems of one subject/gia type atomically and
	// skips problem ids that are already stored.
	UpsertBatch(ctx context.Context, batch Batch) (BatchResult, error)
	Close() error
}

// ProblemQuery is the read side consumed by display tooling.
type ProblemQuery interface {
	ProblemsByTheme(ctx context.Context, gia GiaType, subjectName, codifierID string) ([]StoredProblem, error)
	ProblemsByExamNumber(ctx context.Context, examNumber int) ([]StoredProblem, error)
}

// ExamNumberSetter annotates stored problems. A nil examNumber clears it.
type ExamNumberSetter interface {
	SetExamNumber(ctx context.Context, examNumber *int, problemIDs []string) (int64, error)
}

// Store is the full persistence surface a backend provides.
type Store interface {
	ProblemStore
	ProblemQuery
	ExamNumberSetter
	Ping(ctx context.Context) error
}

// Publisher pushes batch notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
