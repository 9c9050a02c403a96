// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/job-tracker/internal/indexing"
	"github.com/jonathan/job-tracker/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintDrafts outputs status counts and the duplicates found in a dedup batch.
func (p *Printer) PrintDrafts(drafts []types.ListingDraft) {
	if len(drafts) == 0 {
		return
	}

	counts := map[types.DraftStatus]int{}
	var flagged []types.ListingDraft
	for _, d := range drafts {
		counts[d.Status]++
		if d.Status != types.DraftUnique {
			flagged = append(flagged, d)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Checked:     %d\n", len(drafts)))
	sb.WriteString(fmt.Sprintf("Unique:      %d\n", counts[types.DraftUnique]))
	sb.WriteString(fmt.Sprintf("Dup URL:     %d\n", counts[types.DraftDuplicateURL]))
	sb.WriteString(fmt.Sprintf("Dup content: %d\n", counts[types.DraftDuplicateSemantic]))
	sb.WriteString(fmt.Sprintf("Failed:      %d", counts[types.DraftFailed]))

	count := min(len(flagged), maxItemsToShow)
	if count > 0 {
		sb.WriteString("\n")
	}
	for i := 0; i < count; i++ {
		d := flagged[i]
		sb.WriteString(fmt.Sprintf("\n%s  %s\n", statusMarker(d.Status), d.URL))
		switch {
		case d.Status == types.DraftFailed:
			sb.WriteString(fmt.Sprintf("    %s", d.Error))
		case d.DuplicateOf != nil && d.Method != "":
			sb.WriteString(fmt.Sprintf("    of %s (%s %.2f)", d.DuplicateOf.URL, d.Method, d.Score))
		case d.DuplicateOf != nil:
			sb.WriteString(fmt.Sprintf("    of %s", d.DuplicateOf.URL))
		}
	}
	if len(flagged) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n\n... and %d more", len(flagged)-maxItemsToShow))
	}

	p.printBox("DEDUP RESULTS", sb.String())
}

func statusMarker(s types.DraftStatus) string {
	switch s {
	case types.DraftDuplicateURL:
		return "URL"
	case types.DraftDuplicateSemantic:
		return "SIM"
	case types.DraftFailed:
		return "ERR"
	default:
		return "OK "
	}
}

// PrintRankedExperiences outputs the selected experiences and their kept bullets.
func (p *Printer) PrintRankedExperiences(listing *types.Listing, experiences []types.Experience) {
	if listing == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Role:     %s\n", listing.Title))
	sb.WriteString(fmt.Sprintf("Company:  %s\n", listing.Company))
	sb.WriteString(fmt.Sprintf("Requirements: %d", len(listing.Requirements)))

	if len(experiences) == 0 {
		sb.WriteString("\n\nNo relevant experiences found")
	}
	for i, exp := range experiences {
		sb.WriteString(fmt.Sprintf("\n\n#%d  %s, %s\n", i+1, exp.Title, exp.Organization))
		for j, b := range exp.Bullets {
			sb.WriteString("    • " + b)
			if j < len(exp.Bullets)-1 {
				sb.WriteString("\n")
			}
		}
	}

	p.printBox("RANKED EXPERIENCES", sb.String())
}

// PrintIndexStats outputs the document counts written by an indexing run.
func (p *Printer) PrintIndexStats(stats indexing.Stats) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Listings:     %d\n", stats.Listings))
	sb.WriteString(fmt.Sprintf("Experiences:  %d\n", stats.Experiences))
	sb.WriteString(fmt.Sprintf("Bullets:      %d", stats.Bullets))

	p.printBox("INDEXED", sb.String())
}
