package tracker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/s0up4200/airdate/tmdb"
)

// airDateFormat is how air dates are shown to the user
const airDateFormat = "Mon Jan 02 2006"

const nothingNew = "nothing new"

// ConsoleFormatter renders fetch results as a table for the terminal
type ConsoleFormatter struct {
	borderStyle lipgloss.Style
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{
		borderStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// FormatSummary renders one row per fetched show followed by the shows that
// could not be fetched.
func (f *ConsoleFormatter) FormatSummary(results []Result) string {
	var sb strings.Builder

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		Headers("SHOW", "ID", "STATUS", "LAST EPISODE", "NEXT EPISODE")

	var rows int
	var failed []Result
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
			continue
		}
		tbl.Row(f.row(r)...)
		rows++
	}

	if rows == 0 {
		sb.WriteString("No shows to display\n")
	} else {
		sb.WriteString(tbl.Render())
		sb.WriteString("\n")
	}

	if len(failed) > 0 {
		fmt.Fprintf(&sb, "\nUnable to fetch data for %d show", len(failed))
		if len(failed) != 1 {
			sb.WriteString("s")
		}
		sb.WriteString(":\n")

		for _, r := range failed {
			fmt.Fprintf(&sb, "  • %s: %v\n", r.Query, r.Err)
		}
	}

	return sb.String()
}

func (f *ConsoleFormatter) row(r Result) []string {
	show := r.Show
	row := []string{
		show.Name,
		strconv.FormatInt(show.ID, 10),
		string(show.Status),
	}

	if !show.HasNewSeason(r.Query.Season) {
		return append(row, nothingNew, nothingNew)
	}

	return append(row, formatEpisode(show.LastEpisodeToAir), formatEpisode(show.NextEpisodeToAir))
}

// formatEpisode renders an episode as "s01e02 on Mon Jan 02 2006"
func formatEpisode(e *tmdb.Episode) string {
	if e == nil {
		return "-"
	}

	aired := e.AirTime()
	if aired.IsZero() {
		return e.Code()
	}
	return fmt.Sprintf("%s on %s", e.Code(), aired.Format(airDateFormat))
}
