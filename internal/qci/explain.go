package qci

import (
	"fmt"
	"strings"

	"CallScorer/internal/domain"
)

// Explain renders a plain-text audit trail of a scoring result.
func Explain(r domain.ScoringResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "QCI %.2f (%s)", r.TotalScore, r.Status)
	if r.Profile != "" {
		fmt.Fprintf(&b, " profile=%s", r.Profile)
	}
	b.WriteString("\n")

	for _, d := range r.Breakdown.Dimensions() {
		fmt.Fprintf(&b, "  %-10s %6.2f / %g\n", d.Name, d.Total, d.Max)
		for _, c := range d.Components {
			fmt.Fprintf(&b, "    %-20s %6.2f  %s\n", c.Name, c.Score, c.Evidence)
		}
	}

	b.WriteString("  gates\n")
	for _, g := range r.Gates {
		mark := "PASS"
		if !g.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "    %-20s %s  %s\n", g.Name, mark, g.Reason)
	}

	if len(r.Flags) > 0 {
		fmt.Fprintf(&b, "  flags: %s\n", strings.Join(r.Flags, ", "))
	}
	return b.String()
}
