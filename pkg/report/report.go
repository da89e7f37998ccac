// Package report renders plans, outcomes, and dependency graphs for
// human consumption. Everything here is a pure function from pipeline
// data to text or image bytes.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jmarlow/cookery/pkg/builder"
	"github.com/jmarlow/cookery/pkg/plan"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorWhite  = lipgloss.Color("255")
	colorDim    = lipgloss.Color("240")
)

var (
	styleBuild     = lipgloss.NewStyle().Foreground(colorCyan)
	styleSatisfied = lipgloss.NewStyle().Foreground(colorDim)
	styleSuccess   = lipgloss.NewStyle().Foreground(colorGreen)
	styleFailed    = lipgloss.NewStyle().Foreground(colorRed)
	styleSkipped   = lipgloss.NewStyle().Foreground(colorYellow)
	styleIdentity  = lipgloss.NewStyle().Foreground(colorWhite)
	styleDetail    = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	iconBuild     = "⚙"
	iconSatisfied = "·"
	iconSuccess   = "✓"
	iconFailed    = "✗"
	iconSkipped   = "→"
)

// RenderPlan renders the pre-execution view: what will be built and what
// is already satisfied. Outcomes here come from a dry run.
func RenderPlan(p *plan.BuildPlan, outcomes builder.Outcomes) string {
	var b strings.Builder
	builds := 0
	for _, n := range p.Nodes {
		out := outcomes[n.ID]
		switch out.Status {
		case builder.StatusSatisfied:
			fmt.Fprintf(&b, "  %s %s %s\n",
				styleSatisfied.Render(iconSatisfied),
				styleIdentity.Render(n.ID.String()),
				styleDetail.Render("(installed)"))
		default:
			builds++
			fmt.Fprintf(&b, "  %s %s\n",
				styleBuild.Render(iconBuild),
				styleIdentity.Render(n.ID.String()))
		}
	}
	if builds == 0 {
		b.WriteString(styleSatisfied.Render("  nothing to build, everything is installed") + "\n")
	}
	return b.String()
}

// RenderOutcomes renders the post-execution view, one line per planned
// node in plan order, plus a summary line.
func RenderOutcomes(p *plan.BuildPlan, outcomes builder.Outcomes) string {
	var b strings.Builder
	for _, n := range p.Nodes {
		out := outcomes[n.ID]
		switch out.Status {
		case builder.StatusSuccess:
			fmt.Fprintf(&b, "  %s %s %s\n",
				styleSuccess.Render(iconSuccess),
				styleIdentity.Render(n.ID.String()),
				styleDetail.Render(out.Duration.Round(time.Millisecond).String()))
		case builder.StatusSatisfied:
			fmt.Fprintf(&b, "  %s %s %s\n",
				styleSatisfied.Render(iconSatisfied),
				styleIdentity.Render(n.ID.String()),
				styleDetail.Render("(installed)"))
		case builder.StatusFailed:
			fmt.Fprintf(&b, "  %s %s %s\n",
				styleFailed.Render(iconFailed),
				styleIdentity.Render(n.ID.String()),
				styleFailed.Render("failed"))
			if out.LogPath != "" {
				fmt.Fprintf(&b, "      %s\n", styleDetail.Render("log: "+out.LogPath))
			}
		case builder.StatusSkipped:
			fmt.Fprintf(&b, "  %s %s %s\n",
				styleSkipped.Render(iconSkipped),
				styleIdentity.Render(n.ID.String()),
				styleSkipped.Render("skipped ("+out.Upstream.Name+" failed)"))
		}
	}
	b.WriteString("\n" + Summary(outcomes) + "\n")
	return b.String()
}

// Summary renders the one-line outcome tally.
func Summary(outcomes builder.Outcomes) string {
	parts := []string{}
	if n := outcomes.Count(builder.StatusSuccess); n > 0 {
		parts = append(parts, styleSuccess.Render(fmt.Sprintf("%d built", n)))
	}
	if n := outcomes.Count(builder.StatusSatisfied); n > 0 {
		parts = append(parts, styleSatisfied.Render(fmt.Sprintf("%d already installed", n)))
	}
	if n := outcomes.Count(builder.StatusPlanned); n > 0 {
		parts = append(parts, styleBuild.Render(fmt.Sprintf("%d to build", n)))
	}
	if n := outcomes.Count(builder.StatusFailed); n > 0 {
		parts = append(parts, styleFailed.Render(fmt.Sprintf("%d failed", n)))
	}
	if n := outcomes.Count(builder.StatusSkipped); n > 0 {
		parts = append(parts, styleSkipped.Render(fmt.Sprintf("%d skipped", n)))
	}
	if len(parts) == 0 {
		return styleSatisfied.Render("nothing to do")
	}
	return strings.Join(parts, styleDetail.Render(", "))
}
