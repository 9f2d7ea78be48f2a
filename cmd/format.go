package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/storage"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	okStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32"))

	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160"))

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

var titleCaser = cases.Title(language.Und)

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatStats(stats *storage.Stats) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Storage Statistics"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Backend:      %s\n", stats.Backend)
	fmt.Fprintf(&b, "Collections:  %d\n", stats.Collections)
	fmt.Fprintf(&b, "Items:        %s\n", formatNumber(stats.Items))
	fmt.Fprintf(&b, "Last synced:  %s\n", formatTime(stats.LastSynced))
	if stats.SizeBytes > 0 {
		fmt.Fprintf(&b, "Size:         %s\n", formatBytes(stats.SizeBytes))
	}

	if len(stats.PerCollection) == 0 {
		b.WriteString("\n" + noDataStyle.Render("Nothing synced yet.") + "\n")
		return b.String()
	}

	b.WriteString("\n" + headerStyle.Render("Per collection") + "\n")
	for _, c := range stats.PerCollection {
		fmt.Fprintf(&b, "  %-24s %s\n", c.Slug, formatNumber(c.ItemCount))
	}
	return b.String()
}

func formatReport(report *core.SyncReport) string {
	var b strings.Builder
	b.WriteString(okStyle.Render("Sync complete"))
	fmt.Fprintf(&b, " %s\n", metaStyle.Render(report.RunID))
	fmt.Fprintf(&b, "Collections: %d\n", report.CollectionsCount)
	fmt.Fprintf(&b, "Items:       %s\n", formatNumber(report.ItemsCount))
	for _, c := range report.Collections {
		fmt.Fprintf(&b, "  %-24s %s\n", c.Slug, formatNumber(c.ItemCount))
	}
	if report.Duration > 0 {
		fmt.Fprintf(&b, "%s\n", metaStyle.Render("took "+report.Duration.Round(time.Millisecond).String()))
	}
	return b.String()
}

func formatResults(results []core.Result) string {
	if len(results) == 0 {
		return noDataStyle.Render("No results found") + "\n"
	}

	var b strings.Builder
	for i, r := range results {
		name := r.Name
		if name == "" {
			name = r.ID
		}
		fmt.Fprintf(&b, "%3d. %s %s\n", i+1, headerStyle.Render(name), metaStyle.Render(r.Slug))
	}
	fmt.Fprintf(&b, "\nTotal: %d results\n", len(results))
	return b.String()
}

func formatCollections(collections []core.Collection, counts map[string]int, lastSynced time.Time) string {
	if len(collections) == 0 {
		return noDataStyle.Render("No collections stored. Run a sync first.") + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Collections"))
	b.WriteString("\n")
	for _, c := range collections {
		fmt.Fprintf(&b, "  %-24s %-28s %6s items  %s\n",
			c.Slug, titleCaser.String(c.DisplayName), formatNumber(counts[c.Slug]), metaStyle.Render(c.ID))
	}
	fmt.Fprintf(&b, "\nLast synced: %s\n", formatTime(lastSynced))
	return b.String()
}
