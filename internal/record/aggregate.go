package record

import "github.com/JakeFAU/fipibank-harvester/internal/bank"

// Aggregate merges records of one subject batch by problem id. The output
// keeps the order of first appearance, the first record's fields win, and
// the theme lists are concatenated in observation order.
func Aggregate(records []bank.ProblemRecord) []bank.ProblemRecord {
	index := make(map[string]int, len(records))
	out := make([]bank.ProblemRecord, 0, len(records))
	for _, rec := range records {
		if i, ok := index[rec.ProblemID]; ok {
			out[i].Themes = append(out[i].Themes, rec.Themes...)
			continue
		}
		merged := rec
		merged.Themes = append([]bank.ThemeRef(nil), rec.Themes...)
		merged.FileURLs = append([]string(nil), rec.FileURLs...)
		index[rec.ProblemID] = len(out)
		out = append(out, merged)
	}
	return out
}

// Tag sets the theme context on each record observed on a theme page.
func Tag(records []bank.ProblemRecord, theme bank.ThemeRef) {
	for i := range records {
		records[i].Themes = append(records[i].Themes, theme)
	}
}
