package compose

import (
	"testing"

	"cryptick/pkg/config"
	"cryptick/pkg/models"

	"github.com/stretchr/testify/assert"
)

func fp(v float64) *float64 { return &v }

func intp(v int) *int { return &v }

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   *float64
		want string
	}{
		{nil, Placeholder},
		{fp(1234.5), "$1,234.50"},
		{fp(100.0), "$100.00"},
		{fp(99.999), "$99.999"}, // just under the 2-decimal tier
		{fp(1.0), "$1.000"},
		{fp(0.999), "$0.9990"},
		{fp(0.1), "$0.1000"},
		{fp(0.012345678), "$0.01234568"},
		{fp(0.00000001234), "$0.00000001"},
		{fp(0.5), "$0.5"}, // trailing zeros stripped below a dime
		{fp(0.0), "$0"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatPrice(tc.in))
	}
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, "+1.50%", FormatPct(fp(1.5)))
	assert.Equal(t, "-0.25%", FormatPct(fp(-0.25)))
	assert.Equal(t, Placeholder, FormatPct(nil))
}

func TestFormatChanges(t *testing.T) {
	assert.Equal(t, "+2% last 5m / -13% last 24h", FormatChanges(fp(1.7), fp(-12.9)))
	assert.Equal(t, "— last 5m / +5% last 24h", FormatChanges(nil, fp(5.0)))
	assert.Equal(t, "— last 5m / — last 24h", FormatChanges(nil, nil))
}

func TestShortAddr(t *testing.T) {
	assert.Equal(t, "0x1234…cdef", ShortAddr("0x123456789abcdef0cdef"))
	assert.Equal(t, "0x12345678", ShortAddr("0x12345678"))
}

func TestDisplayName(t *testing.T) {
	s := config.DefaultState()
	tok := models.Token{NetworkID: "eth", Address: "0xABCDEF1234567890", CustomName: "Mine"}
	s.TokenNames[tok.Key()] = "Feed Name"

	ps := s.SettingsFor("High Risk Assets")

	// custom names off: feed name wins
	assert.Equal(t, "Feed Name", DisplayName(s, ps, tok))

	ps.UseCustomNames = true
	assert.Equal(t, "Mine", DisplayName(s, ps, tok))

	// custom names on but blank custom name: fall back to feed name
	tok.CustomName = "   "
	assert.Equal(t, "Feed Name", DisplayName(s, ps, tok))

	// no cached name: shortened address
	delete(s.TokenNames, tok.Key())
	assert.Equal(t, "0xabcd…7890", DisplayName(s, ps, tok))
}

func scenarioState() *config.State {
	s := config.DefaultState()
	low := s.Profile("Low Risk Assets")
	low.Tokens = []models.Token{
		{NetworkID: "eth", Address: "0xaaa1"},
		{NetworkID: "bsc", Address: "0xbbb1"},
	}
	high := s.Profile("High Risk Assets")
	high.Tokens = []models.Token{
		{NetworkID: "eth", Address: "0xccc1"},
	}
	lp := s.SettingsFor("Low Risk Assets")
	lp.MonitorIndex = intp(0)
	lp.RefreshSec = 45
	s.ProfileSettings["Low Risk Assets"] = lp
	hp := s.SettingsFor("High Risk Assets")
	hp.MonitorIndex = intp(0)
	hp.RefreshSec = 5
	s.ProfileSettings["High Risk Assets"] = hp
	return s
}

func TestResolveAssignments(t *testing.T) {
	s := scenarioState()
	a := ResolveAssignments(s)

	// Declaration order within the monitor: High before Low.
	assert.Equal(t, map[int][]string{0: {"High Risk Assets", "Low Risk Assets"}}, a)

	// Emptying a profile's tokens removes it from the assignment.
	s.Profile("High Risk Assets").Tokens = nil
	a = ResolveAssignments(s)
	assert.Equal(t, map[int][]string{0: {"Low Risk Assets"}}, a)

	// A profile without a monitor target never appears.
	lp := s.SettingsFor("Low Risk Assets")
	lp.MonitorIndex = nil
	s.ProfileSettings["Low Risk Assets"] = lp
	assert.Empty(t, ResolveAssignments(s))
}

func TestRoundInterval(t *testing.T) {
	s := scenarioState()
	a := ResolveAssignments(s)
	assert.Equal(t, 45, RoundInterval(s, a))

	// Interval floor applies when every profile refreshes faster.
	lp := s.SettingsFor("Low Risk Assets")
	lp.RefreshSec = 5
	s.ProfileSettings["Low Risk Assets"] = lp
	assert.Equal(t, MinRefreshSec, RoundInterval(s, ResolveAssignments(s)))

	assert.Equal(t, MinRefreshSec, RoundInterval(s, map[int][]string{}))
}

func TestBuildDisplayItems(t *testing.T) {
	s := scenarioState()
	cache := ResultCache{
		"High Risk Assets": {
			"eth:0xccc1": {Price: fp(0.042), Change5m: fp(1.2), Change24h: fp(-3.4)},
		},
		"Low Risk Assets": {
			"eth:0xaaa1": {Price: fp(2500.0)},
		},
	}

	items := BuildDisplayItems(s, cache, 0, func(key string) string {
		if key == "eth:0xccc1" {
			return "/tmp/eth_0xccc1.png"
		}
		return ""
	})

	assert.Len(t, items, 3)
	assert.Equal(t, "High Risk Assets|eth:0xccc1", items[0].Key)
	assert.Equal(t, "$0.042", items[0].PriceText)
	assert.Equal(t, "+1% last 5m / -3% last 24h", items[0].Changes)
	assert.Equal(t, "/tmp/eth_0xccc1.png", items[0].LogoPath)

	assert.Equal(t, "Low Risk Assets|eth:0xaaa1", items[1].Key)
	assert.Equal(t, "$2,500.00", items[1].PriceText)

	// Token the feed has not answered for yet renders placeholders.
	assert.Equal(t, "Low Risk Assets|bsc:0xbbb1", items[2].Key)
	assert.Equal(t, Placeholder, items[2].PriceText)

	// A monitor with no assigned profiles composes nothing.
	assert.Empty(t, BuildDisplayItems(s, cache, 1, nil))
}

func TestBuildDisplayItemsDuplicateAcrossProfiles(t *testing.T) {
	s := scenarioState()
	shared := models.Token{NetworkID: "eth", Address: "0xccc1"}
	low := s.Profile("Low Risk Assets")
	low.Tokens = append(low.Tokens, shared)

	items := BuildDisplayItems(s, nil, 0, nil)

	// The same token in two profiles on one monitor stays two items with
	// distinct keys.
	keys := map[string]bool{}
	shares := 0
	for _, it := range items {
		assert.False(t, keys[it.Key])
		keys[it.Key] = true
		if it.TokenKey == shared.Key() {
			shares++
		}
	}
	assert.Equal(t, 2, shares)
}

func TestBarPropsFor(t *testing.T) {
	s := scenarioState()
	hp := s.SettingsFor("High Risk Assets")
	hp.Opacity = 0.3
	hp.ClickThrough = false
	hp.ShowLogo = false
	s.ProfileSettings["High Risk Assets"] = hp
	lp := s.SettingsFor("Low Risk Assets")
	lp.Opacity = 0.9
	lp.ShowLogo = true
	s.ProfileSettings["Low Risk Assets"] = lp

	props := BarPropsFor(s, []string{"High Risk Assets", "Low Risk Assets"})
	assert.Equal(t, 0.9, props.Opacity)
	assert.False(t, props.ClickThrough) // one profile opting out disables it
	assert.True(t, props.WantLogos)

	props = BarPropsFor(s, []string{"High Risk Assets"})
	assert.Equal(t, 0.3, props.Opacity)

	// No profiles: fall back to the translucent default.
	props = BarPropsFor(s, nil)
	assert.Equal(t, 0.7, props.Opacity)
	assert.True(t, props.ClickThrough)
	assert.False(t, props.WantLogos)
}
