package ui

import (
	"fmt"
	"strings"
	"time"

	"receiptgen/internal/bulk"
	"receiptgen/internal/receipt"

	"github.com/charmbracelet/glamour"
)

// BulkSummary describes a finished bulk job as markdown.
func BulkSummary(res *bulk.Result, path string) string {
	var b strings.Builder
	b.WriteString("# Bulk export finished\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Archive | `%s` |\n", path)
	fmt.Fprintf(&b, "| Receipts listed | %d |\n", len(res.Records))
	fmt.Fprintf(&b, "| Images rendered | %d |\n", res.Rendered)
	signatory := res.Signatory
	if !res.Signed {
		signatory += " (no signature image)"
	}
	fmt.Fprintf(&b, "| Signatory | %s |\n", signatory)
	fmt.Fprintf(&b, "| Duration | %s |\n", res.Duration.Round(time.Millisecond))

	if len(res.Skipped) > 0 {
		b.WriteString("\n## Not rendered\n\nThese names are in the student list but have no image:\n\n")
		for _, n := range res.Skipped {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	if len(res.Dropped) > 0 {
		b.WriteString("\n## Dropped\n\nNo receipt could be generated for:\n\n")
		for _, n := range res.Dropped {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return b.String()
}

// NamesTable lists generated name pairs as markdown.
func NamesTable(pairs []receipt.NamePair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %d generated names\n\n| # | Student | Parent |\n|---|---|---|\n", len(pairs))
	for i, p := range pairs {
		fmt.Fprintf(&b, "| %d | %s | %s |\n", i+1, p.StudentName, p.ParentName)
	}
	return b.String()
}

// Markdown renders md for the terminal. Rendering problems fall back to the
// raw markdown.
func Markdown(md string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
