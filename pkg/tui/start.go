package tui

import (
	"fmt"
	"os"

	"cryptick/pkg/models"
	"cryptick/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

func Start(s *watcher.Scheduler, networks []models.Network, statePath, version string) {
	Version = version
	p := tea.NewProgram(
		initialModel(s, networks, statePath),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
