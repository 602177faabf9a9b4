// Package parser extracts subjects, themes and problem cards from bank pages.
//
// Every function assumes the fixed page layout the bank serves. A missing
// anchor is reported as bank.ErrStructure and no partial result is returned.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

const (
	subjectIDPrefixLen = 2
	cardSelector       = "div.qblock"
)

func newDocument(html []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// SubjectIndex reads the landing page. Subjects are the items of the second
// list on the page; each item id carries a two character prefix before the hash.
func SubjectIndex(html []byte) ([]bank.Subject, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}
	lists := doc.Find("ul")
	if lists.Length() < 2 {
		return nil, bank.StructureErrorf("landing page has %d lists, want at least 2", lists.Length())
	}

	var (
		subjects []bank.Subject
		parseErr error
	)
	lists.Eq(1).Find("li").EachWithBreak(func(i int, item *goquery.Selection) bool {
		id, _ := item.Attr("id")
		id = strings.TrimSpace(id)
		if len(id) <= subjectIDPrefixLen {
			parseErr = bank.StructureErrorf("subject item %d has unusable id %q", i, id)
			return false
		}
		subjects = append(subjects, bank.Subject{
			Name: strings.TrimSpace(item.Text()),
			Hash: id[subjectIDPrefixLen:],
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(subjects) == 0 {
		return nil, bank.StructureErrorf("subject list is empty")
	}
	return subjects, nil
}

// ThemeIndex reads a subject's index page and returns its codifier themes in
// page order. Header rows of the dropdown are skipped.
func ThemeIndex(html []byte) ([]bank.ThemeRef, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}
	menu := doc.Find("ul.dropdown-menu").First()
	if menu.Length() == 0 {
		return nil, bank.StructureErrorf("theme dropdown not found")
	}

	var (
		themes   []bank.ThemeRef
		parseErr error
	)
	menu.Find("li.dropdown-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if item.HasClass("dropdown-header") {
			return true
		}
		text := strings.TrimSpace(item.Text())
		codifierID, title, ok := strings.Cut(text, " ")
		if !ok || codifierID == "" {
			parseErr = bank.StructureErrorf("theme entry %q has no codifier id", text)
			return false
		}
		themes = append(themes, bank.ThemeRef{
			CodifierID: codifierID,
			Name:       strings.TrimSpace(title),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return themes, nil
}

// ProblemCards returns every problem block of a listing page in document
// order. Cards are raw; see Reassemble. A page without cards is valid.
func ProblemCards(html []byte) ([]bank.Card, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}
	blocks := doc.Find(cardSelector)
	cards := make([]bank.Card, 0, blocks.Length())
	var renderErr error
	blocks.EachWithBreak(func(i int, block *goquery.Selection) bool {
		markup, err := goquery.OuterHtml(block)
		if err != nil {
			renderErr = fmt.Errorf("render card %d: %w", i, err)
			return false
		}
		id, _ := block.Attr("id")
		id = strings.TrimSpace(id)
		cards = append(cards, bank.Card{ID: id, HasID: id != "", HTML: markup})
		return true
	})
	if renderErr != nil {
		return nil, renderErr
	}
	return cards, nil
}

// Listing parses a listing page and reassembles split cards.
func Listing(html []byte) ([]bank.Card, error) {
	raw, err := ProblemCards(html)
	if err != nil {
		return nil, err
	}
	return Reassemble(raw)
}
