package parser

import (
	"strings"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

// Reassemble repairs cards the bank splits in two. A card without an id is
// the leading part of the next card that has one, so its markup is prepended
// there. Consecutive id-less cards all fold into the next anchored card.
//
// For N raw cards of which K lack an id, exactly N-K cards are returned in the
// order of their anchors. Id-less cards at the end of the page have nothing to
// attach to and are reported as bank.ErrStructure.
func Reassemble(cards []bank.Card) ([]bank.Card, error) {
	out := make([]bank.Card, 0, len(cards))
	var pending strings.Builder
	orphans := 0

	for _, card := range cards {
		if !card.HasID {
			pending.WriteString(card.HTML)
			orphans++
			continue
		}
		if orphans > 0 {
			pending.WriteString(card.HTML)
			card.HTML = pending.String()
			pending.Reset()
			orphans = 0
		}
		out = append(out, card)
	}

	if orphans > 0 {
		return nil, bank.StructureErrorf("%d trailing card fragment(s) without an id", orphans)
	}
	return out, nil
}
