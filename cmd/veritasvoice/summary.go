package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/veritasvoice/internal/config"
	"github.com/MrWong99/veritasvoice/internal/resilience"
)

var (
	accent = lipgloss.Color("#00ff9f")
	dim    = lipgloss.Color("#6e7681")

	summaryTitle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	summaryLabel = lipgloss.NewStyle().Foreground(dim).Width(12)
	summaryBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)

// printStartupSummary renders a boxed overview of the running configuration.
func printStartupSummary(w io.Writer, cfg *config.Config, status []resilience.EntryStatus) {
	fmt.Fprintln(w, renderSummary(cfg, status))
}

func renderSummary(cfg *config.Config, status []resilience.EntryStatus) string {
	rows := [][2]string{
		{"Listen", cfg.Server.ListenAddr},
		{"TLS", onOff(cfg.Server.TLS != nil)},
		{"API keys", fmt.Sprintf("%d", len(cfg.Server.APIKeys))},
		{"Explainer", providerLabel(cfg.Providers.Explainer)},
		{"Fallbacks", fallbackLabel(cfg.Providers.Fallbacks)},
		{"Breakers", breakerLabel(status)},
		{"Metrics", cfg.Telemetry.MetricsPath},
	}

	var b strings.Builder
	b.WriteString(summaryTitle.Render("VeritasVoice " + version))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(summaryLabel.Render(r[0]))
		b.WriteString(r[1])
	}
	return summaryBox.Render(b.String())
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(templated only)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func fallbackLabel(entries []config.ProviderEntry) string {
	if len(entries) == 0 {
		return "(none)"
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return strings.Join(names, ", ")
}

func breakerLabel(status []resilience.EntryStatus) string {
	if len(status) == 0 {
		return "-"
	}
	parts := make([]string, len(status))
	for i, s := range status {
		parts[i] = s.Name + "=" + s.State.String()
	}
	return strings.Join(parts, " ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
