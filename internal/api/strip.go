package api

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// answerRowSelector matches the answer input row of a problem table.
const answerRowSelector = "table > tbody > tr:nth-child(2)"

// stripAnswer removes the first answer input row from condition markup. Rows
// of later tables belong to the condition and stay. Markup without such a
// row is returned re-serialized but otherwise unchanged.
func stripAnswer(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse condition: %w", err)
	}
	doc.Find(answerRowSelector).First().Remove()
	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render condition: %w", err)
	}
	return out, nil
}
