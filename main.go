package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cryptick/pkg/config"
	"cryptick/pkg/logo"
	"cryptick/pkg/server"
	"cryptick/pkg/tui"
	"cryptick/pkg/watcher"
)

// Version should be set during build
var Version = "dev"

type testReport struct {
	StatePath       string   `json:"state_path"`
	ValidStructure  bool     `json:"valid_structure"`
	StructureErrors []string `json:"structure_errors,omitempty"`
	Profiles        int      `json:"profiles"`
	Tokens          int      `json:"tokens"`
	Networks        int      `json:"networks"`
}

func main() {
	testFlag := flag.Bool("t", false, "Validate the state file and exit")
	testLongFlag := flag.Bool("test", false, "Validate the state file and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	configFlag := flag.String("config", "", "Path to state file")
	networksFlag := flag.String("networks", "", "Path to a networks catalog overriding the built-in one")
	restoreFlag := flag.Bool("restore-backup", false, "Restore the most recent state backup and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("cryptick version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetStatePath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining state path: %v\n", err)
		os.Exit(1)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Error restoring backup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restored most recent backup over %s\n", path)
		os.Exit(0)
	}

	networks, err := config.LoadNetworks(*networksFlag)
	if err != nil {
		fmt.Printf("Error loading networks catalog: %v\n", err)
		os.Exit(1)
	}

	state, err := config.LoadStateFromFile(path)
	if err != nil {
		fmt.Printf("Error loading state from %s: %v\n", path, err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		report := testReport{
			StatePath:      path,
			ValidStructure: true,
			Profiles:       len(state.Profiles),
			Networks:       len(networks),
		}
		for _, p := range state.Profiles {
			report.Tokens += len(p.Tokens)
		}
		report.StructureErrors = config.ValidateState(state, networks)
		if len(report.StructureErrors) > 0 {
			report.ValidStructure = false
		}

		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			fmt.Printf("Testing state at: %s\n", path)
			fmt.Printf("Profiles: %d, tokens: %d, networks known: %d\n",
				report.Profiles, report.Tokens, report.Networks)
			for _, e := range report.StructureErrors {
				fmt.Printf("  - %s\n", e)
			}
			if report.ValidStructure {
				fmt.Println("State OK.")
			}
		}
		if !report.ValidStructure {
			os.Exit(1)
		}
		os.Exit(0)
	}

	log := newLogger(*serverFlag)

	logos, err := logo.NewCache(logoCacheDir(), log)
	if err != nil {
		fmt.Printf("Error preparing logo cache: %v\n", err)
		os.Exit(1)
	}

	sched := watcher.NewScheduler(state, logos, log)

	ctx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()

	if *serverFlag {
		sched.Start(ctx)
		apiServer := server.NewServer(sched)
		fmt.Printf("Starting headless server on port %d\n", *portFlag)
		if err := apiServer.Start(*portFlag); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	go func() {
		apiServer := server.NewServer(sched)
		if err := apiServer.Start(*portFlag); err != nil {
			log.Error("api server stopped", "error", err)
		}
	}()

	tui.Start(sched, networks, path, Version)
}

// maxLogSize is the point at which the log file starts over.
const maxLogSize = 1 << 20

// newLogger logs to stderr in server mode and to a file when the TUI
// owns the terminal. The file is truncated once it outgrows maxLogSize.
func newLogger(serverMode bool) *slog.Logger {
	var w io.Writer = os.Stderr
	if !serverMode {
		w = io.Discard
		if home, err := os.UserHomeDir(); err == nil {
			path := filepath.Join(home, ".cryptick.log")
			mode := os.O_CREATE | os.O_APPEND | os.O_WRONLY
			if st, err := os.Stat(path); err == nil && st.Size() > maxLogSize {
				mode = os.O_CREATE | os.O_TRUNC | os.O_WRONLY
			}
			if f, err := os.OpenFile(path, mode, 0o644); err == nil {
				w = f
			}
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func logoCacheDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "cryptick", "logos")
	}
	return filepath.Join(os.TempDir(), "cryptick-logos")
}
