package tui

import (
	"time"

	"cryptick/pkg/config"
	"cryptick/pkg/models"
	"cryptick/pkg/ticker"
	"cryptick/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// historyLimit bounds the per-token price history kept for sparklines.
const historyLimit = 720

// --- Messages ---

type clearStatusMsg struct{}
type frameTickMsg time.Time
type nameResolvedMsg struct {
	key  string
	name string
}

type trackState int

const (
	trackStopped trackState = iota
	trackRunning
	trackPaused
)

// --- Model ---

type model struct {
	scheduler *watcher.Scheduler
	sub       watcher.Subscriber
	statePath string
	networks  []models.Network

	state    *config.State
	tracking trackState

	bars    map[int]*ticker.Bar
	samples map[string]models.PriceSample // active profile detail rows
	history map[string][]float64          // token key -> recent prices

	width  int
	height int

	loading       bool
	lastUpdate    time.Time
	spinner       spinner.Model
	statusMessage string

	tokenIdx    int
	addingToken bool
	tokenInputs []textinput.Model

	renaming    bool
	renameInput textinput.Model

	showDetail bool
	viewport   viewport.Model
	showHelp   bool
}

func initialModel(s *watcher.Scheduler, networks []models.Network, statePath string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	tis := make([]textinput.Model, 3)
	for i := range tis {
		tis[i] = textinput.New()
		tis[i].Width = 50
	}
	tis[0].Placeholder = "Network id (e.g. eth)"
	tis[1].Placeholder = "Token address"
	tis[2].Placeholder = "Custom name (optional)"

	ri := textinput.New()
	ri.Placeholder = "New profile name"
	ri.Width = 40

	return model{
		scheduler:   s,
		sub:         s.Subscribe(),
		statePath:   statePath,
		networks:    networks,
		state:       s.Snapshot(),
		tracking:    trackStopped,
		bars:        map[int]*ticker.Bar{},
		samples:     map[string]models.PriceSample{},
		history:     map[string][]float64{},
		loading:     false,
		spinner:     sp,
		tokenInputs: tis,
		renameInput: ri,
		viewport:    viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		listenForScheduler(m.sub),
		m.spinner.Tick,
		tea.Tick(ticker.FrameInterval, func(t time.Time) tea.Msg { return frameTickMsg(t) }),
	)
}

func listenForScheduler(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}
