package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cryptick/pkg/compose"
	"cryptick/pkg/config"
	"cryptick/pkg/feed"
	"cryptick/pkg/logo"
	"cryptick/pkg/models"
)

var (
	// IdlePollInterval is how often the scheduler re-checks assignments while
	// nothing is visible. Pause latency is bounded by this.
	IdlePollInterval = time.Second
	// CrashBackoff is the fixed pause after an unexpected round failure.
	CrashBackoff = 2 * time.Second
)

// DataSource defines the interface for fetching feed data.
type DataSource interface {
	FetchTokenBatch(ctx context.Context, networkID string, addrs []string) models.BatchResult
	FetchTokenInfo(ctx context.Context, networkID, addr string) models.TokenInfo
	Reset()
}

// Scheduler owns the refresh loop: it resolves assignments, runs fetch
// rounds, merges results into the shared cache, and hands composed item lists
// to subscribers. One scheduler run exists per process; Start always waits
// for the previous run to stop so two rounds can never overlap.
type Scheduler struct {
	mu         sync.RWMutex
	state      *config.State
	results    compose.ResultCache
	dataSource DataSource

	logos *logo.Cache
	log   *slog.Logger

	subscribers []Subscriber

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a Scheduler over the given state. logos may be nil.
func NewScheduler(state *config.State, logos *logo.Cache, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		state:      state,
		results:    compose.ResultCache{},
		dataSource: feed.NewClient(),
		logos:      logos,
		log:        log,
	}
}

// SetDataSource allows overriding the data source (useful for testing).
func (s *Scheduler) SetDataSource(ds DataSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataSource = ds
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (s *Scheduler) Subscribe() Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(Subscriber, 100)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (s *Scheduler) Unsubscribe(ch Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Scheduler) notify(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber is slow, drop the event rather than stall a round.
		}
	}
}

// ApplyConfig swaps in a new configuration. The running loop picks it up at
// its next boundary (idle poll or start of round); rounds themselves operate
// on snapshots, so a mid-round apply never races a fetch.
func (s *Scheduler) ApplyConfig(state *config.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current configuration.
func (s *Scheduler) Snapshot() *config.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Results returns a copy of the merged sample cache for one profile.
func (s *Scheduler) Results(profile string) map[string]models.PriceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.PriceSample, len(s.results[profile]))
	for k, v := range s.results[profile] {
		out[k] = v
	}
	return out
}

func (s *Scheduler) resultsSnapshot() compose.ResultCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(compose.ResultCache, len(s.results))
	for name, samples := range s.results {
		cp := make(map[string]models.PriceSample, len(samples))
		for k, v := range samples {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

// CycleActiveProfile advances the active profile in declaration order,
// wrapping. Monitor assignments are untouched.
func (s *Scheduler) CycleActiveProfile() string {
	s.mu.Lock()
	name := s.state.CycleActiveProfile()
	s.mu.Unlock()
	s.log.Info("active profile switched", "profile", name)
	s.notify(Event{Type: EventProfileCycled, Data: CycleData{Profile: name}})
	return name
}

// ResolveTokenName fills the name cache for a newly added token via the
// single-token info endpoint. Failures only log; the token stays usable.
func (s *Scheduler) ResolveTokenName(ctx context.Context, networkID, addr string) string {
	key := models.KeyFor(networkID, addr)
	s.mu.RLock()
	name := s.state.TokenNames[key]
	ds := s.dataSource
	s.mu.RUnlock()
	if name != "" {
		return name
	}
	info := ds.FetchTokenInfo(ctx, networkID, addr)
	if info.Err != nil {
		s.log.Warn("name lookup failed", "key", key, "err", info.Err)
		return ""
	}
	if info.Name != "" {
		s.mu.Lock()
		s.state.TokenNames[key] = info.Name
		s.mu.Unlock()
	}
	return info.Name
}

// Start launches the refresh loop. Any previous run is cancelled and fully
// drained first, so two concurrent rounds can never double API traffic or
// race cache writes.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(runCtx, done)
}

// Pause cancels the refresh loop only. Bars keep their last-known data.
func (s *Scheduler) Pause() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked()
	s.log.Info("tracking paused")
}

// Stop cancels the refresh loop and tells renderers to tear down their bars.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked()
	s.notify(Event{Type: EventBarsCleared})
	s.log.Info("tracking stopped")
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
		s.done = nil
	}
}

// Running reports whether a refresh loop is active.
func (s *Scheduler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		s.runOnce(ctx)
	}
}

// runOnce executes one idle check or one full fetch round. This is the only
// recovery boundary in the scheduler: an unexpected failure is logged, the
// session is re-initialized, and the loop continues after a short backoff.
func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("refresh round failed", "panic", r)
			sleepCtx(ctx, CrashBackoff)
			s.mu.RLock()
			ds := s.dataSource
			s.mu.RUnlock()
			ds.Reset()
		}
	}()

	snap := s.Snapshot()
	assignments := compose.ResolveAssignments(snap)
	if len(assignments) == 0 {
		s.notify(Event{Type: EventStatusUpdated, Data: StatusData{Message: "No visible profiles."}})
		sleepCtx(ctx, IdlePollInterval)
		return
	}

	interval := compose.RoundInterval(snap, assignments)
	monitors := sortedMonitors(assignments)
	t0 := time.Now()
	s.log.Info("refresh start", "monitors", monitors, "interval", interval)

	for _, p := range snap.Profiles {
		if ctx.Err() != nil {
			return
		}
		ps := snap.SettingsFor(p.Name)
		if ps.MonitorIndex == nil || len(p.Tokens) == 0 {
			continue
		}
		s.fetchProfile(ctx, snap, p, ps)
	}

	// Compose with the names and icons this round revealed.
	snap = s.Snapshot()
	results := s.resultsSnapshot()
	for _, mon := range monitors {
		profiles := assignments[mon]
		props := compose.BarPropsFor(snap, profiles)
		items := compose.BuildDisplayItems(snap, results, mon, s.logoPath)
		s.notify(Event{Type: EventItemsComposed, Data: ItemsData{Monitor: mon, Items: items, Props: props}})
		if props.WantLogos {
			s.prefetchLogos(ctx, snap, profiles)
		}
	}

	msg := fmt.Sprintf("Refreshed monitors: %v. Next in ~%ds.", monitors, interval)
	s.notify(Event{Type: EventStatusUpdated, Data: StatusData{Message: msg}})
	s.log.Info(msg)

	sleep := time.Duration(interval)*time.Second - time.Since(t0)
	if sleep < time.Second {
		sleep = time.Second
	}
	sleepCtx(ctx, sleep)
}

// fetchProfile runs one batched request per network for one profile and
// merges successful batches into the shared cache. A failed batch is logged
// and skipped; earlier samples for its tokens stay in place.
func (s *Scheduler) fetchProfile(ctx context.Context, snap *config.State, p config.Profile, ps config.ProfileSettings) {
	var nets []string
	byNet := map[string][]string{}
	seen := map[string]bool{}
	for _, t := range p.Tokens {
		key := t.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := byNet[t.NetworkID]; !ok {
			nets = append(nets, t.NetworkID)
		}
		byNet[t.NetworkID] = append(byNet[t.NetworkID], models.NormalizeAddress(t.Address))
	}

	s.mu.RLock()
	ds := s.dataSource
	s.mu.RUnlock()

	for _, net := range nets {
		if ctx.Err() != nil {
			return
		}
		addrs := byNet[net]
		s.log.Info("fetch batch", "profile", p.Name, "network", net, "tokens", len(addrs))
		res := ds.FetchTokenBatch(ctx, net, addrs)
		if res.Err != nil {
			s.log.Warn("batch failed", "profile", p.Name, "network", net, "err", res.Err)
			continue
		}
		s.mergeBatch(p.Name, ps, res)
	}

	s.notify(Event{Type: EventDetailUpdated, Data: DetailData{Profile: p.Name, Samples: s.Results(p.Name)}})
}

// mergeBatch folds one successful batch into the result cache and writes any
// revealed names and icon URLs back to the shared name/icon caches, even when
// this round's trigger was a different profile.
func (s *Scheduler) mergeBatch(profile string, ps config.ProfileSettings, res models.BatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results[profile] == nil {
		s.results[profile] = map[string]models.PriceSample{}
	}
	for k, v := range res.Samples {
		s.results[profile][k] = v
	}
	for k, name := range res.Names {
		s.state.TokenNames[k] = name
	}
	if ps.ShowLogo {
		for k, url := range res.IconURLs {
			s.state.TokenLogos[k] = url
		}
	}
}

func (s *Scheduler) logoPath(key string) string {
	if s.logos == nil {
		return ""
	}
	return s.logos.Path(key)
}

// prefetchLogos kicks the logo cache for every token of the given profiles
// whose icon URL is known but whose image is not cached yet.
func (s *Scheduler) prefetchLogos(ctx context.Context, snap *config.State, profiles []string) {
	if s.logos == nil {
		return
	}
	wants := map[string]string{}
	for _, name := range profiles {
		p := snap.Profile(name)
		if p == nil {
			continue
		}
		for _, t := range p.Tokens {
			key := t.Key()
			if url := snap.TokenLogos[key]; url != "" {
				wants[key] = url
			}
		}
	}
	s.logos.Prefetch(ctx, wants)
}

func sortedMonitors(assignments map[int][]string) []int {
	monitors := make([]int, 0, len(assignments))
	for mon := range assignments {
		monitors = append(monitors, mon)
	}
	sort.Ints(monitors)
	return monitors
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
