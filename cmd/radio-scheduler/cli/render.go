package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func stateStyle(s daemon.State) lipgloss.Style {
	switch s {
	case daemon.Steady:
		return okStyle
	case daemon.Degraded:
		return errStyle
	case daemon.Initializing:
		return warnStyle
	default:
		return dimStyle
	}
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func stationLabel(ref *daemon.StationRef) string {
	if ref == nil {
		return dimStyle.Render("nothing (silence)")
	}
	if ref.Name == "" || ref.Name == ref.ID {
		return ref.ID
	}
	return fmt.Sprintf("%s %s", ref.Name, dimStyle.Render("("+ref.ID+")"))
}

// RenderStatus formats a snapshot as a bordered block.
func RenderStatus(s daemon.Snapshot, now time.Time) string {
	health := okStyle.Render(s.Health)
	if s.Health != daemon.HealthOK {
		health = errStyle.Render(s.Health)
	}

	rows := []string{
		titleStyle.Render("radio-scheduler"),
		row("State", stateStyle(s.State).Render(s.State.String())+"  "+health),
		row("Station", stationLabel(s.Desired)),
		row("Source", string(s.Source)),
	}

	switch {
	case !s.BackendReachable:
		player := errStyle.Render("unreachable")
		if s.NextAttempt != nil {
			player += dimStyle.Render(fmt.Sprintf("  retry in %s", s.NextAttempt.Sub(now).Round(time.Second)))
		}
		rows = append(rows, row("Player", player))
	case s.Player.Playing:
		rows = append(rows, row("Player", okStyle.Render("playing")+" "+s.Player.CurrentURL))
	default:
		rows = append(rows, row("Player", warnStyle.Render("stopped")))
	}
	if s.Player.Title != "" {
		rows = append(rows, row("Now", s.Player.Title))
	}
	if details := streamDetails(s.Player); details != "" {
		rows = append(rows, row("Stream", details))
	}

	if s.Override != nil {
		rows = append(rows, row("Override", fmt.Sprintf("%s since %s",
			s.Override.StationID, s.Override.SetAt.Local().Format("15:04"))))
	}
	if s.NewsSkipped {
		rows = append(rows, row("News", warnStyle.Render("skipped today")))
	}
	if s.ConsecutiveFailures > 0 {
		rows = append(rows, row("Failures", errStyle.Render(fmt.Sprintf("%d", s.ConsecutiveFailures))))
	}
	if s.LastError != "" {
		rows = append(rows, row("Last error", errStyle.Render(s.LastError)))
	}
	if s.ConfigError != "" {
		rows = append(rows, row("Config", errStyle.Render(s.ConfigError)))
	}
	rows = append(rows, row("Stations", fmt.Sprintf("%d", s.Stations)))
	if !s.StartedAt.IsZero() {
		rows = append(rows, row("Uptime", now.Sub(s.StartedAt).Round(time.Second).String()))
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func streamDetails(p domain.PlayerState) string {
	var parts []string
	if p.Bitrate != "" {
		parts = append(parts, p.Bitrate+" kbps")
	}
	if p.AudioFormat != "" {
		parts = append(parts, p.AudioFormat)
	}
	if p.Volume >= 0 && p.BackendReachable {
		parts = append(parts, fmt.Sprintf("volume %d%%", p.Volume))
	}
	return strings.Join(parts, ", ")
}

// RenderSummary is the one-line status printed after a command.
func RenderSummary(s daemon.Snapshot) string {
	line := stateStyle(s.State).Render(s.State.String()) + " " + stationLabel(s.Desired)
	if s.Source != "" {
		line += dimStyle.Render(" [" + string(s.Source) + "]")
	}
	return line
}

// RenderEvent formats one play event on a single line.
func RenderEvent(ev domain.PlayEvent) string {
	action := okStyle.Render(string(ev.Action))
	if ev.Action == domain.ActionStop {
		action = warnStyle.Render(string(ev.Action))
	}
	line := fmt.Sprintf("%s  %-4s  %s", dimStyle.Render(ev.At.Local().Format("2006-01-02 15:04:05")), action, ev.StationID)
	if ev.Source != "" {
		line += dimStyle.Render(" [" + ev.Source + "]")
	}
	if ev.Error != "" {
		line += " " + errStyle.Render(ev.Error)
	}
	return line
}

// RenderHistory formats events newest first.
func RenderHistory(events []domain.PlayEvent) string {
	if len(events) == 0 {
		return dimStyle.Render("no play history yet")
	}
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, RenderEvent(ev))
	}
	return strings.Join(lines, "\n")
}

// RenderValidation formats a validation report.
func RenderValidation(r *ValidationReport) string {
	rows := []string{
		okStyle.Render("✔ ") + r.Path,
		row("Stations", fmt.Sprintf("%d", r.Stations)),
		row("Schedule", fmt.Sprintf("%d entries", r.Entries)),
		row("News", fmt.Sprintf("%d rules", r.NewsRules)),
	}
	if r.Default != "" {
		rows = append(rows, row("Default", r.Default))
	}
	now := r.NowKind
	if r.NowStation != "" {
		now += " " + r.NowStation
	}
	rows = append(rows, row("Now", now))
	for _, c := range r.Conflicts {
		rows = append(rows, warnStyle.Render("warning: "+c))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
