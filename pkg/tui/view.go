package tui

import (
	"fmt"
	"strings"

	"cryptick/pkg/utils"

	"github.com/charmbracelet/lipgloss"
)

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.viewHelp()
	}

	if m.addingToken {
		var inputs []string
		labels := []string{"Network", "Address", "Custom name"}
		for i, label := range labels {
			inputs = append(inputs, fmt.Sprintf("%-12s %s", label, m.tokenInputs[i].View()))
		}
		return lipgloss.Place(
			m.width, m.height, lipgloss.Center, lipgloss.Center,
			boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
				titleStyle.Render("Add Token"),
				"\n",
				strings.Join(inputs, "\n"),
				"\n",
				subtleStyle.Render("Tab to next • Enter on last field to save • Esc to cancel"),
			)),
		)
	}

	if m.renaming {
		return lipgloss.Place(
			m.width, m.height, lipgloss.Center, lipgloss.Center,
			boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
				titleStyle.Render("Rename Profile"),
				"\n",
				m.renameInput.View(),
				"\n",
				subtleStyle.Render("Enter to save • Esc to cancel"),
			)),
		)
	}

	if m.showDetail {
		return lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("CrypTick — All Profiles"),
			m.viewport.View(),
			subtleStyle.Render("(d) back • (q) quit"),
		)
	}

	var sections []string
	sections = append(sections, m.viewHeader())
	sections = append(sections, m.viewBars()...)
	sections = append(sections, m.viewActiveProfile())
	sections = append(sections, m.viewFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) viewHeader() string {
	title := titleStyle.Render("CrypTick " + Version)

	var state string
	switch m.tracking {
	case trackRunning:
		if m.loading {
			state = m.spinner.View() + " fetching"
		} else {
			state = infoStyle.Render("tracking")
		}
	case trackPaused:
		state = subtleStyle.Render("paused (frozen)")
	default:
		state = subtleStyle.Render("stopped")
	}

	status := m.statusMessage
	if status == "" && !m.lastUpdate.IsZero() {
		status = "Last update " + m.lastUpdate.Format("15:04:05")
	}
	status = utils.TruncateString(status, 80)

	return lipgloss.JoinHorizontal(lipgloss.Center,
		title, "  ", state, "  ", subtleStyle.Render(status),
	)
}

// viewBars renders one full-width ticker line per monitor with an active bar,
// with its aggregate properties in the frame line above it.
func (m model) viewBars() []string {
	monitors := m.sortedBarMonitors()
	if len(monitors) == 0 {
		return []string{subtleStyle.Render("No bars yet — assign a profile to a monitor (m) and start tracking (s).")}
	}

	var out []string
	for _, mon := range monitors {
		bar := m.bars[mon]
		props := bar.Props()
		mode := "static"
		if bar.Marquee() {
			mode = "marquee"
		}
		ct := "interactive"
		if props.ClickThrough {
			ct = "click-through"
		}
		frame := barFrameStyle.Render(fmt.Sprintf("── monitor %d · %s · opacity %.2f · %s ", mon, mode, props.Opacity, ct))
		out = append(out, frame, bar.View())
	}
	return out
}

func (m model) viewActiveProfile() string {
	active := m.state.Profile(m.state.ActiveProfile)
	if active == nil {
		return ""
	}
	ps := m.state.SettingsFor(active.Name)

	header := tableHeaderStyle.Render(fmt.Sprintf("%-24s %-12s %-16s %14s %9s %9s",
		"Name", "Network", "Address", "Last price", "24h %", "5m %"))

	rows := m.detailRows()
	body := "No tokens yet. Press (a) to add one."
	if len(rows) > 0 {
		body = strings.Join(rows, "\n")
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("Profile: %s  %s", infoStyle.Render(active.Name), subtleStyle.Render(settingsSummary(ps))),
		header,
		body,
		"",
		m.selectedSparkline(m.width),
	))
}

func (m model) viewFooter() string {
	assignments := m.monitorAssignments()
	assigned := ""
	if len(assignments) == 0 {
		assigned = "no profiles assigned"
	} else {
		var parts []string
		for _, mon := range m.sortedAssignmentMonitors(assignments) {
			parts = append(parts, fmt.Sprintf("%d:%s", mon, strings.Join(assignments[mon], "+")))
		}
		assigned = strings.Join(parts, "  ")
	}
	return subtleStyle.Render(fmt.Sprintf(
		"monitors %s • (s)tart (p)ause e(x)it-tracking (c)ycle (a)dd (d)etail (m)onitor (y)copy (?)help (q)uit",
		assigned,
	))
}

func (m model) viewHelp() string {
	help := [][2]string{
		{"s / p / x", "start, pause (bars stay frozen), stop (bars removed)"},
		{"c", "cycle the active profile (declaration order, wraps)"},
		{"a", "add a token to the active profile"},
		{"r", "rename the active profile"},
		{"backspace", "remove the selected token"},
		{"[ / ]", "move the selected token up / down"},
		{"up / down", "select token"},
		{"m", "cycle the active profile's monitor target (none, 0, 1, 2)"},
		{"t / l / u", "toggle click-through, logos, custom names"},
		{"y", "copy the selected token's address"},
		{"d", "all-profiles detail view"},
		{"q", "quit"},
	}
	var rows []string
	for _, h := range help {
		rows = append(rows, fmt.Sprintf("%-12s %s", h[0], subtleStyle.Render(h[1])))
	}
	return lipgloss.Place(
		m.width, m.height, lipgloss.Center, lipgloss.Center,
		boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("CrypTick — Keys"),
			"\n",
			strings.Join(rows, "\n"),
			"\n",
			subtleStyle.Render("(?) or (h) to close"),
		)),
	)
}

func (m model) sortedAssignmentMonitors(assignments map[int][]string) []int {
	monitors := make([]int, 0, len(assignments))
	for mon := range assignments {
		monitors = append(monitors, mon)
	}
	for i := 1; i < len(monitors); i++ {
		for j := i; j > 0 && monitors[j] < monitors[j-1]; j-- {
			monitors[j], monitors[j-1] = monitors[j-1], monitors[j]
		}
	}
	return monitors
}
