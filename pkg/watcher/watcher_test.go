package watcher

import (
	"context"
	"testing"
	"time"

	"cryptick/pkg/config"
	"cryptick/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) FetchTokenBatch(ctx context.Context, networkID string, addrs []string) models.BatchResult {
	args := m.Called(ctx, networkID, addrs)
	return args.Get(0).(models.BatchResult)
}

func (m *MockDataSource) FetchTokenInfo(ctx context.Context, networkID, addr string) models.TokenInfo {
	args := m.Called(ctx, networkID, addr)
	return args.Get(0).(models.TokenInfo)
}

func (m *MockDataSource) Reset() {
	m.Called()
}

func fp(v float64) *float64 { return &v }

func assignedState() *config.State {
	s := config.DefaultState()
	p := s.Profile("High Risk Assets")
	p.Tokens = []models.Token{
		{NetworkID: "eth", Address: "0xaaa"},
		{NetworkID: "bsc", Address: "0xbbb"},
		{NetworkID: "eth", Address: "0xAAA"}, // same token, mixed case
	}
	ps := s.SettingsFor("High Risk Assets")
	mon := 0
	ps.MonitorIndex = &mon
	s.ProfileSettings["High Risk Assets"] = ps
	return s
}

func drain(sub Subscriber) []Event {
	var events []Event
	for {
		select {
		case e := <-sub:
			events = append(events, e)
		default:
			return events
		}
	}
}

func eventsOfType(events []Event, t EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s := NewScheduler(config.DefaultState(), nil, nil)
	sub := s.Subscribe()
	assert.NotNil(t, sub)

	s.mu.RLock()
	assert.Equal(t, 1, len(s.subscribers))
	s.mu.RUnlock()

	s.Unsubscribe(sub)
	s.mu.RLock()
	assert.Equal(t, 0, len(s.subscribers))
	s.mu.RUnlock()

	_, open := <-sub
	assert.False(t, open)
}

func TestRunOnceIdle(t *testing.T) {
	old := IdlePollInterval
	IdlePollInterval = time.Millisecond
	defer func() { IdlePollInterval = old }()

	s := NewScheduler(config.DefaultState(), nil, nil) // nothing assigned
	sub := s.Subscribe()

	s.runOnce(context.Background())

	events := drain(sub)
	statuses := eventsOfType(events, EventStatusUpdated)
	assert.Len(t, statuses, 1)
	assert.Equal(t, "No visible profiles.", statuses[0].Data.(StatusData).Message)
	assert.Empty(t, eventsOfType(events, EventItemsComposed))
}

func TestRunOnceFetchesAndComposes(t *testing.T) {
	mockDS := new(MockDataSource)
	s := NewScheduler(assignedState(), nil, nil)
	s.SetDataSource(mockDS)
	sub := s.Subscribe()

	mockDS.On("FetchTokenBatch", mock.Anything, "eth", []string{"0xaaa"}).Return(models.BatchResult{
		NetworkID: "eth",
		Samples:   map[string]models.PriceSample{"eth:0xaaa": {Price: fp(2.5)}},
		Names:     map[string]string{"eth:0xaaa": "Alpha"},
		IconURLs:  map[string]string{"eth:0xaaa": "https://img/a.png"},
	})
	mockDS.On("FetchTokenBatch", mock.Anything, "bsc", []string{"0xbbb"}).Return(models.BatchResult{
		NetworkID: "bsc",
		Samples:   map[string]models.PriceSample{"bsc:0xbbb": {Price: fp(7.0)}},
	})

	// The post-round sleep only ends on cancellation, so bound the round.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.runOnce(ctx)

	mockDS.AssertExpectations(t)
	// Duplicate tokens collapse to one address per network per round.
	mockDS.AssertNumberOfCalls(t, "FetchTokenBatch", 2)

	events := drain(sub)

	details := eventsOfType(events, EventDetailUpdated)
	assert.Len(t, details, 1)
	detail := details[0].Data.(DetailData)
	assert.Equal(t, "High Risk Assets", detail.Profile)
	assert.Equal(t, 2.5, *detail.Samples["eth:0xaaa"].Price)

	composed := eventsOfType(events, EventItemsComposed)
	assert.Len(t, composed, 1)
	items := composed[0].Data.(ItemsData)
	assert.Equal(t, 0, items.Monitor)
	assert.Len(t, items.Items, 3) // profile order keeps the duplicate visible
	assert.Equal(t, "Alpha", items.Items[0].Name)
	assert.Equal(t, "$2.500", items.Items[0].PriceText)

	statuses := eventsOfType(events, EventStatusUpdated)
	assert.Len(t, statuses, 1)
	assert.Contains(t, statuses[0].Data.(StatusData).Message, "Refreshed monitors: [0]")

	// Revealed metadata landed in the shared caches.
	snap := s.Snapshot()
	assert.Equal(t, "Alpha", snap.TokenNames["eth:0xaaa"])
	assert.Equal(t, "https://img/a.png", snap.TokenLogos["eth:0xaaa"])
}

func TestRunOnceBatchFailureIsolated(t *testing.T) {
	mockDS := new(MockDataSource)
	s := NewScheduler(assignedState(), nil, nil)
	s.SetDataSource(mockDS)

	// Seed an earlier sample for the network that is about to fail.
	s.results["High Risk Assets"] = map[string]models.PriceSample{
		"bsc:0xbbb": {Price: fp(6.0)},
	}

	mockDS.On("FetchTokenBatch", mock.Anything, "eth", mock.Anything).Return(models.BatchResult{
		NetworkID: "eth",
		Samples:   map[string]models.PriceSample{"eth:0xaaa": {Price: fp(3.0)}},
	})
	mockDS.On("FetchTokenBatch", mock.Anything, "bsc", mock.Anything).Return(models.BatchResult{
		NetworkID: "bsc",
		Err:       assert.AnError,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.runOnce(ctx)

	// The good network merged; the failed one kept its earlier sample.
	res := s.Results("High Risk Assets")
	assert.Equal(t, 3.0, *res["eth:0xaaa"].Price)
	assert.Equal(t, 6.0, *res["bsc:0xbbb"].Price)
}

func TestRunOncePanicRecovers(t *testing.T) {
	old := CrashBackoff
	CrashBackoff = time.Millisecond
	defer func() { CrashBackoff = old }()

	mockDS := new(MockDataSource)
	s := NewScheduler(assignedState(), nil, nil)
	s.SetDataSource(mockDS)

	mockDS.On("FetchTokenBatch", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("boom") }).
		Return(models.BatchResult{})
	mockDS.On("Reset").Return()

	assert.NotPanics(t, func() { s.runOnce(context.Background()) })
	mockDS.AssertCalled(t, "Reset")
}

func TestStartPauseStop(t *testing.T) {
	old := IdlePollInterval
	IdlePollInterval = time.Millisecond
	defer func() { IdlePollInterval = old }()

	s := NewScheduler(config.DefaultState(), nil, nil) // idle loop only
	sub := s.Subscribe()

	assert.False(t, s.Running())

	ctx := context.Background()
	s.Start(ctx)
	assert.True(t, s.Running())

	// Restart drains the previous run before launching the next.
	s.Start(ctx)
	assert.True(t, s.Running())

	s.Pause()
	assert.False(t, s.Running())

	s.Start(ctx)
	s.Stop()
	assert.False(t, s.Running())

	events := drain(sub)
	assert.NotEmpty(t, eventsOfType(events, EventBarsCleared))
}

func TestStopWithoutStart(t *testing.T) {
	s := NewScheduler(config.DefaultState(), nil, nil)
	assert.NotPanics(t, func() {
		s.Pause()
		s.Stop()
	})
}

func TestCycleActiveProfile(t *testing.T) {
	s := NewScheduler(config.DefaultState(), nil, nil)
	sub := s.Subscribe()

	assert.Equal(t, "Medium Risk Assets", s.CycleActiveProfile())
	assert.Equal(t, "Medium Risk Assets", s.Snapshot().ActiveProfile)

	events := drain(sub)
	cycled := eventsOfType(events, EventProfileCycled)
	assert.Len(t, cycled, 1)
	assert.Equal(t, "Medium Risk Assets", cycled[0].Data.(CycleData).Profile)
}

func TestResolveTokenName(t *testing.T) {
	mockDS := new(MockDataSource)
	s := NewScheduler(config.DefaultState(), nil, nil)
	s.SetDataSource(mockDS)

	mockDS.On("FetchTokenInfo", mock.Anything, "eth", "0xAAA").
		Return(models.TokenInfo{Name: "Alpha"}).Once()

	assert.Equal(t, "Alpha", s.ResolveTokenName(context.Background(), "eth", "0xAAA"))

	// Cached now; a second resolve never hits the feed.
	assert.Equal(t, "Alpha", s.ResolveTokenName(context.Background(), "eth", "0xaaa"))
	mockDS.AssertNumberOfCalls(t, "FetchTokenInfo", 1)
}

func TestResolveTokenNameFailure(t *testing.T) {
	mockDS := new(MockDataSource)
	s := NewScheduler(config.DefaultState(), nil, nil)
	s.SetDataSource(mockDS)

	mockDS.On("FetchTokenInfo", mock.Anything, "eth", "0xbad").
		Return(models.TokenInfo{Err: assert.AnError})

	assert.Equal(t, "", s.ResolveTokenName(context.Background(), "eth", "0xbad"))
	assert.Empty(t, s.Snapshot().TokenNames)
}

func TestMergeBatchLogoGating(t *testing.T) {
	s := NewScheduler(config.DefaultState(), nil, nil)
	ps := s.Snapshot().SettingsFor("High Risk Assets")

	res := models.BatchResult{
		Samples:  map[string]models.PriceSample{"eth:0xaaa": {Price: fp(1.0)}},
		Names:    map[string]string{"eth:0xaaa": "Alpha"},
		IconURLs: map[string]string{"eth:0xaaa": "https://img/a.png"},
	}

	ps.ShowLogo = false
	s.mergeBatch("High Risk Assets", ps, res)
	snap := s.Snapshot()
	assert.Equal(t, "Alpha", snap.TokenNames["eth:0xaaa"]) // names always land
	assert.Empty(t, snap.TokenLogos)

	ps.ShowLogo = true
	s.mergeBatch("High Risk Assets", ps, res)
	assert.Equal(t, "https://img/a.png", s.Snapshot().TokenLogos["eth:0xaaa"])
}
