package tui

import (
	"context"
	"strings"
	"time"

	"cryptick/pkg/config"
	"cryptick/pkg/models"
	"cryptick/pkg/ticker"
	"cryptick/pkg/watcher"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case watcher.Event:
		cmds = append(cmds, listenForScheduler(m.sub))
		m.handleEvent(msg)

	case nameResolvedMsg:
		if msg.name != "" {
			m.state = m.scheduler.Snapshot()
			m.statusMessage = "Resolved name: " + msg.name
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		}

	case frameTickMsg:
		for _, bar := range m.bars {
			bar.Tick()
		}
		cmds = append(cmds, tea.Tick(ticker.FrameInterval, func(t time.Time) tea.Msg { return frameTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for _, bar := range m.bars {
			bar.SetWidth(msg.Width)
		}
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 10

	case tea.KeyMsg:
		if m.addingToken {
			return m.updateTokenForm(msg)
		}
		if m.renaming {
			return m.updateRenameForm(msg)
		}
		return m.updateKeys(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleEvent(event watcher.Event) {
	switch event.Type {
	case watcher.EventStatusUpdated:
		if data, ok := event.Data.(watcher.StatusData); ok {
			m.statusMessage = data.Message
		}
	case watcher.EventDetailUpdated:
		if data, ok := event.Data.(watcher.DetailData); ok {
			m.loading = false
			m.state = m.scheduler.Snapshot()
			if data.Profile == m.state.ActiveProfile {
				m.samples = data.Samples
			}
			for key, sample := range data.Samples {
				if sample.Price == nil {
					continue
				}
				h := append(m.history[key], *sample.Price)
				if len(h) > historyLimit {
					h = h[len(h)-historyLimit:]
				}
				m.history[key] = h
			}
		}
	case watcher.EventItemsComposed:
		if data, ok := event.Data.(watcher.ItemsData); ok {
			bar, ok := m.bars[data.Monitor]
			if !ok {
				bar = ticker.NewBar(data.Monitor, m.width)
				m.bars[data.Monitor] = bar
			}
			bar.SetItems(data.Items, data.Props)
		}
	case watcher.EventProfileCycled:
		m.state = m.scheduler.Snapshot()
		m.samples = m.scheduler.Results(m.state.ActiveProfile)
		m.tokenIdx = 0
	case watcher.EventBarsCleared:
		m.bars = map[int]*ticker.Bar{}
	}
	m.lastUpdate = time.Now()
	if m.showDetail {
		m.updateDetailViewport()
	}
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	active := m.state.Profile(m.state.ActiveProfile)

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "?", "h":
		m.showHelp = !m.showHelp

	case "s":
		m.scheduler.Start(context.Background())
		m.tracking = trackRunning
		m.loading = true
		m.statusMessage = "Tracking started."
		cmds = append(cmds, clearStatusAfter(2*time.Second))

	case "p":
		if m.tracking == trackRunning {
			m.scheduler.Pause()
			m.tracking = trackPaused
			m.statusMessage = "Tracking paused (bars frozen)."
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		}

	case "x":
		if m.tracking != trackStopped {
			m.scheduler.Stop()
			m.tracking = trackStopped
			m.statusMessage = "Tracking stopped."
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		}

	case "c":
		m.scheduler.CycleActiveProfile()

	case "a":
		m.addingToken = true
		for i := range m.tokenInputs {
			m.tokenInputs[i].SetValue("")
			m.tokenInputs[i].Blur()
		}
		m.tokenInputs[0].Focus()

	case "r":
		m.renaming = true
		m.renameInput.SetValue(m.state.ActiveProfile)
		m.renameInput.Focus()

	case "d":
		m.showDetail = !m.showDetail
		if m.showDetail {
			m.updateDetailViewport()
		}

	case "up", "k":
		if m.tokenIdx > 0 {
			m.tokenIdx--
		}

	case "down", "j":
		if active != nil && m.tokenIdx < len(active.Tokens)-1 {
			m.tokenIdx++
		}

	case "[":
		if active != nil && m.tokenIdx > 0 {
			active.Tokens[m.tokenIdx-1], active.Tokens[m.tokenIdx] = active.Tokens[m.tokenIdx], active.Tokens[m.tokenIdx-1]
			m.tokenIdx--
			cmds = append(cmds, m.applyState())
		}

	case "]":
		if active != nil && m.tokenIdx < len(active.Tokens)-1 {
			active.Tokens[m.tokenIdx+1], active.Tokens[m.tokenIdx] = active.Tokens[m.tokenIdx], active.Tokens[m.tokenIdx+1]
			m.tokenIdx++
			cmds = append(cmds, m.applyState())
		}

	case "backspace", "delete":
		if active != nil && m.tokenIdx < len(active.Tokens) {
			active.Tokens = append(active.Tokens[:m.tokenIdx], active.Tokens[m.tokenIdx+1:]...)
			if m.tokenIdx >= len(active.Tokens) && m.tokenIdx > 0 {
				m.tokenIdx--
			}
			cmds = append(cmds, m.applyState())
		}

	case "m":
		// Cycle the active profile's monitor target: none -> 0 -> 1 -> 2 -> none.
		ps := m.state.SettingsFor(m.state.ActiveProfile)
		switch {
		case ps.MonitorIndex == nil:
			idx := 0
			ps.MonitorIndex = &idx
		case *ps.MonitorIndex >= 2:
			ps.MonitorIndex = nil
		default:
			idx := *ps.MonitorIndex + 1
			ps.MonitorIndex = &idx
		}
		m.state.ProfileSettings[m.state.ActiveProfile] = ps
		cmds = append(cmds, m.applyState())

	case "t":
		ps := m.state.SettingsFor(m.state.ActiveProfile)
		ps.ClickThrough = !ps.ClickThrough
		m.state.ProfileSettings[m.state.ActiveProfile] = ps
		cmds = append(cmds, m.applyState())

	case "l":
		ps := m.state.SettingsFor(m.state.ActiveProfile)
		ps.ShowLogo = !ps.ShowLogo
		m.state.ProfileSettings[m.state.ActiveProfile] = ps
		cmds = append(cmds, m.applyState())

	case "u":
		ps := m.state.SettingsFor(m.state.ActiveProfile)
		ps.UseCustomNames = !ps.UseCustomNames
		m.state.ProfileSettings[m.state.ActiveProfile] = ps
		cmds = append(cmds, m.applyState())

	case "y":
		if active != nil && m.tokenIdx < len(active.Tokens) {
			if err := clipboard.WriteAll(active.Tokens[m.tokenIdx].Address); err != nil {
				m.statusMessage = "Failed to copy to clipboard"
			} else {
				m.statusMessage = "Token address copied to clipboard!"
			}
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) updateTokenForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg.String() {
	case "esc":
		m.addingToken = false
		return m, nil

	case "tab", "shift+tab", "enter":
		focused := -1
		for i := range m.tokenInputs {
			if m.tokenInputs[i].Focused() {
				focused = i
				break
			}
		}
		if msg.String() == "enter" && focused == len(m.tokenInputs)-1 {
			return m.submitToken()
		}
		next := focused + 1
		if msg.String() == "shift+tab" {
			next = focused - 1
		}
		if next < 0 {
			next = len(m.tokenInputs) - 1
		}
		next %= len(m.tokenInputs)
		for i := range m.tokenInputs {
			m.tokenInputs[i].Blur()
		}
		m.tokenInputs[next].Focus()
		return m, nil
	}

	for i := range m.tokenInputs {
		var cmd tea.Cmd
		m.tokenInputs[i], cmd = m.tokenInputs[i].Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m model) updateRenameForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.renaming = false
		return m, nil

	case "enter":
		m.renaming = false
		return m, m.renameActiveProfile(strings.TrimSpace(m.renameInput.Value()))
	}

	var cmd tea.Cmd
	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}

// renameActiveProfile renames the active profile everywhere its name is a
// key: the profile list, its settings record, and the active selector.
func (m *model) renameActiveProfile(newName string) tea.Cmd {
	oldName := m.state.ActiveProfile
	if newName == "" || newName == oldName {
		return nil
	}
	if m.state.Profile(newName) != nil {
		m.statusMessage = "A profile named " + newName + " already exists."
		return clearStatusAfter(2 * time.Second)
	}
	active := m.state.Profile(oldName)
	if active == nil {
		return nil
	}
	active.Name = newName
	if ps, ok := m.state.ProfileSettings[oldName]; ok {
		m.state.ProfileSettings[newName] = ps
		delete(m.state.ProfileSettings, oldName)
	}
	m.state.ActiveProfile = newName
	return m.applyState()
}

func (m model) submitToken() (tea.Model, tea.Cmd) {
	netID := strings.TrimSpace(m.tokenInputs[0].Value())
	addr := strings.TrimSpace(m.tokenInputs[1].Value())
	custom := strings.TrimSpace(m.tokenInputs[2].Value())
	if netID == "" || addr == "" {
		m.statusMessage = "Network and address are required."
		return m, clearStatusAfter(2 * time.Second)
	}
	known := false
	for _, n := range m.networks {
		if n.ID == netID {
			known = true
			break
		}
	}
	if !known {
		m.statusMessage = "Unknown network id: " + netID
		return m, clearStatusAfter(2 * time.Second)
	}

	tok := models.Token{
		NetworkID:  netID,
		Address:    models.NormalizeAddress(addr),
		CustomName: custom,
	}
	active := m.state.Profile(m.state.ActiveProfile)
	if active == nil {
		return m, nil
	}
	active.Tokens = append(active.Tokens, tok)
	m.addingToken = false

	cmds := []tea.Cmd{m.applyState(), resolveName(m.scheduler, tok)}
	return m, tea.Batch(cmds...)
}

// applyState persists the working state and hands a copy to the scheduler,
// which picks it up at its next round boundary.
func (m *model) applyState() tea.Cmd {
	if err := config.SaveState(m.state, m.statePath); err != nil {
		m.statusMessage = "Save failed: " + err.Error()
	}
	m.scheduler.ApplyConfig(m.state.Clone())
	return clearStatusAfter(3 * time.Second)
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func resolveName(s *watcher.Scheduler, tok models.Token) tea.Cmd {
	return func() tea.Msg {
		name := s.ResolveTokenName(context.Background(), tok.NetworkID, tok.Address)
		return nameResolvedMsg{key: tok.Key(), name: name}
	}
}
