// Package bank defines the core types shared across the harvesting subsystems.
package bank

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// GiaType is the exam track a problem belongs to.
type GiaType string

// Supported exam tracks. The store seeds exactly these two rows.
const (
	GiaOGE GiaType = "oge"
	GiaEGE GiaType = "ege"
)

// AllGiaTypes returns the fixed seed set in a stable order.
func AllGiaTypes() []GiaType {
	return []GiaType{GiaOGE, GiaEGE}
}

// Valid reports whether g is one of the known tracks.
func (g GiaType) Valid() bool {
	return g == GiaOGE || g == GiaEGE
}

// ParseGiaType normalizes raw input into a GiaType.
func ParseGiaType(raw string) (GiaType, error) {
	g := GiaType(strings.ToLower(strings.TrimSpace(raw)))
	if !g.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidGiaType, raw)
	}
	return g, nil
}

// Subject is an exam discipline. Hash is the stable external project id and
// the natural key; Name is descriptive only.
type Subject struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// Theme is a codifier topic within a subject, unique per (SubjectID, CodifierID).
type Theme struct {
	ID         int64  `json:"id,omitempty"`
	SubjectID  int64  `json:"subject_id"`
	CodifierID string `json:"codifier_id"`
	Name       string `json:"name"`
}

// ThemeRef is the theme context a problem was observed under.
type ThemeRef struct {
	CodifierID string `json:"codifier_id"`
	Name       string `json:"name"`
}

// Card is one raw problem fragment taken from a listing page.
type Card struct {
	// ID is the raw DOM id attribute (e.g. "q0A1B2C"); empty when HasID is false.
	ID    string
	HasID bool
	HTML  string
}

// ProblemRecord is the normalized in-memory form of one harvested problem.
type ProblemRecord struct {
	ProblemID     string     `json:"problem_id"`
	SubjectName   string     `json:"subject_name"`
	SubjectHash   string     `json:"subject_hash"`
	URL           string     `json:"url"`
	ConditionHTML string     `json:"condition_html"`
	GiaType       GiaType    `json:"gia_type"`
	FileURLs      []string   `json:"file_urls"`
	Themes        []ThemeRef `json:"themes"`
}

// Batch is a set of records sharing one subject and one gia type, persisted atomically.
type Batch struct {
	GiaType GiaType
	Subject Subject
	Records []ProblemRecord
}

// Validate checks the batch header. Records are trusted to match it.
func (b Batch) Validate() error {
	if !b.GiaType.Valid() {
		return fmt.Errorf("%w: gia type %q", ErrInvalidBatch, b.GiaType)
	}
	if strings.TrimSpace(b.Subject.Hash) == "" {
		return fmt.Errorf("%w: subject hash is required", ErrInvalidBatch)
	}
	return nil
}

// BatchResult summarizes what an upsert did.
type BatchResult struct {
	Inserted    int      `json:"inserted"`
	Skipped     int      `json:"skipped"`
	InsertedIDs []string `json:"inserted_ids,omitempty"`
}

// StoredProblem is the read model returned to query consumers.
type StoredProblem struct {
	ProblemID     string `json:"problem_id"`
	URL           string `json:"url"`
	ConditionHTML string `json:"condition_html"`
	ExamNumber    *int   `json:"exam_number,omitempty"`
}

// FetchRequest captures everything needed to fetch one bank page.
type FetchRequest struct {
	URL   string
	Query url.Values
}

// FullURL renders the request URL with its encoded query.
func (r FetchRequest) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + r.Query.Encode()
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Attempts   int
	Duration   time.Duration
}
