// Package record turns reassembled cards into problem records and merges the
// per-theme observations of a subject.
package record

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

const problemIDPrefix = "q"

var filePattern = regexp.MustCompile(`ShowPictureQ\w{0,3}\('(.+?)'\)`)

// Builder builds records for one gia type.
type Builder struct {
	endpoints bank.Endpoints
}

// NewBuilder returns a Builder resolving URLs against endpoints.
func NewBuilder(endpoints bank.Endpoints) *Builder {
	return &Builder{endpoints: endpoints}
}

// Build converts a reassembled card into a record. The card markup is kept
// verbatim; themes are left empty for Aggregate to fill.
func (b *Builder) Build(card bank.Card, subject bank.Subject) (bank.ProblemRecord, error) {
	if !card.HasID {
		return bank.ProblemRecord{}, bank.StructureErrorf("card without id reached the record builder")
	}
	problemID := strings.TrimPrefix(card.ID, problemIDPrefix)
	if problemID == "" || problemID == card.ID {
		return bank.ProblemRecord{}, bank.StructureErrorf("card id %q does not carry the %q prefix", card.ID, problemIDPrefix)
	}

	files, err := b.fileURLs(card.HTML)
	if err != nil {
		return bank.ProblemRecord{}, fmt.Errorf("problem %s: %w", problemID, err)
	}

	return bank.ProblemRecord{
		ProblemID:     problemID,
		SubjectName:   subject.Name,
		SubjectHash:   subject.Hash,
		URL:           b.endpoints.ProblemURL(subject.Hash, problemID),
		ConditionHTML: card.HTML,
		GiaType:       b.endpoints.GiaType,
		FileURLs:      files,
	}, nil
}

// BuildAll builds one record per card, stopping at the first failure.
func (b *Builder) BuildAll(cards []bank.Card, subject bank.Subject) ([]bank.ProblemRecord, error) {
	records := make([]bank.ProblemRecord, 0, len(cards))
	for _, card := range cards {
		rec, err := b.Build(card, subject)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// fileURLs scans the card scripts for picture calls, in order, without dedup.
func (b *Builder) fileURLs(markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse card: %w", err)
	}

	var (
		urls       []string
		resolveErr error
	)
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		for _, match := range filePattern.FindAllStringSubmatch(script.Text(), -1) {
			resolved, err := b.endpoints.ResolveFile(cleanFilePath(match[1]))
			if err != nil {
				resolveErr = err
				return false
			}
			urls = append(urls, resolved)
		}
		return true
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return urls, nil
}

// cleanFilePath drops the page-relative "../../" prefix and any extra call
// arguments the lazy match swallowed.
func cleanFilePath(raw string) string {
	path, _, _ := strings.Cut(raw, "','")
	return strings.TrimPrefix(path, "../../")
}
