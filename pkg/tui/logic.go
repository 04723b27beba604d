package tui

import (
	"fmt"
	"sort"
	"strings"

	"cryptick/pkg/compose"
	"cryptick/pkg/config"

	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/guptarohit/asciigraph"
)

// sortedBarMonitors returns the monitors with an active bar in ascending order.
func (m model) sortedBarMonitors() []int {
	monitors := make([]int, 0, len(m.bars))
	for mon := range m.bars {
		monitors = append(monitors, mon)
	}
	sort.Ints(monitors)
	return monitors
}

// displayAddress renders a token address for the detail table: EIP-55
// checksum form for hex addresses, unchanged otherwise.
func displayAddress(addr string) string {
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

// detailRows builds the active profile's table rows from the latest merged
// samples. Percent changes use the 2-decimal tabular form.
func (m model) detailRows() []string {
	active := m.state.Profile(m.state.ActiveProfile)
	if active == nil {
		return nil
	}
	ps := m.state.SettingsFor(active.Name)

	rows := make([]string, 0, len(active.Tokens))
	for i, t := range active.Tokens {
		key := t.Key()
		sample := m.samples[key]
		name := compose.DisplayName(m.state, ps, t)
		row := fmt.Sprintf("%-24s %-12s %-16s %14s %9s %9s",
			truncName(name, 24),
			truncName(config.NetworkName(m.networks, t.NetworkID), 12),
			compose.ShortAddr(displayAddress(t.Address)),
			compose.FormatPrice(sample.Price),
			compose.FormatPct(sample.Change24h),
			compose.FormatPct(sample.Change5m),
		)
		if i == m.tokenIdx {
			row = selectedRowStyle.Render(row)
		}
		rows = append(rows, row)
	}
	return rows
}

func truncName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// selectedSparkline plots the selected token's recent price history.
func (m model) selectedSparkline(width int) string {
	active := m.state.Profile(m.state.ActiveProfile)
	if active == nil || m.tokenIdx >= len(active.Tokens) {
		return ""
	}
	key := active.Tokens[m.tokenIdx].Key()
	history := m.history[key]
	if len(history) < 2 {
		return subtleStyle.Render("Price history builds up as rounds complete.")
	}
	if width < 20 {
		width = 20
	}
	return asciigraph.Plot(history,
		asciigraph.Height(6),
		asciigraph.Width(width-10),
		asciigraph.Caption("Price history (USD)"),
	)
}

// updateDetailViewport fills the detail view with every profile's cached
// samples, grouped per profile the way the bar merges them.
func (m *model) updateDetailViewport() {
	var sections []string

	for _, p := range m.state.Profiles {
		if len(p.Tokens) == 0 {
			continue
		}
		ps := m.state.SettingsFor(p.Name)
		samples := m.scheduler.Results(p.Name)

		var rows []string
		for _, t := range p.Tokens {
			sample := samples[t.Key()]
			rows = append(rows, fmt.Sprintf("  %-24s %14s %9s %9s",
				truncName(compose.DisplayName(m.state, ps, t), 24),
				compose.FormatPrice(sample.Price),
				compose.FormatPct(sample.Change24h),
				compose.FormatPct(sample.Change5m),
			))
		}

		target := "unassigned"
		if ps.MonitorIndex != nil {
			target = fmt.Sprintf("monitor %d", *ps.MonitorIndex)
		}
		header := fmt.Sprintf("%s (%s, refresh %ds)", p.Name, target, ps.RefreshSec)
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left,
			subtleStyle.Render(header),
			strings.Join(rows, "\n"),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if len(sections) == 0 {
		content = "No tokens configured."
	}
	m.viewport.SetContent(content)
}

// monitorAssignments is the resolver output for the current working state,
// used by the dashboard summary line.
func (m model) monitorAssignments() map[int][]string {
	return compose.ResolveAssignments(m.state)
}

func settingsSummary(ps config.ProfileSettings) string {
	flags := []string{fmt.Sprintf("refresh %ds", ps.RefreshSec)}
	if ps.ClickThrough {
		flags = append(flags, "click-through")
	}
	if ps.ShowLogo {
		flags = append(flags, "logos")
	}
	if ps.UseCustomNames {
		flags = append(flags, "custom names")
	}
	return strings.Join(flags, " · ")
}

