package compose

import (
	"fmt"
	"strings"

	"cryptick/pkg/config"
	"cryptick/pkg/models"
	"cryptick/pkg/utils"
)

// Placeholder is rendered for any value the feed has not provided.
const Placeholder = "—"

// MinRefreshSec is the floor on the scheduler's round interval.
const MinRefreshSec = 10

// ResolveAssignments computes which profiles feed which monitor. Profiles are
// visited in declaration order; a profile is included iff it has a monitor
// target and at least one token. Pure and deterministic.
func ResolveAssignments(s *config.State) map[int][]string {
	out := map[int][]string{}
	for _, p := range s.Profiles {
		ps := s.SettingsFor(p.Name)
		if ps.MonitorIndex == nil || len(p.Tokens) == 0 {
			continue
		}
		out[*ps.MonitorIndex] = append(out[*ps.MonitorIndex], p.Name)
	}
	return out
}

// RoundInterval returns the refresh cadence in seconds: the maximum configured
// interval across all assigned profiles, floored at MinRefreshSec.
func RoundInterval(s *config.State, assignments map[int][]string) int {
	r := 0
	for _, profiles := range assignments {
		for _, name := range profiles {
			if sec := s.SettingsFor(name).RefreshSec; sec > r {
				r = sec
			}
		}
	}
	if r < MinRefreshSec {
		r = MinRefreshSec
	}
	return r
}

// FormatPrice renders a price with the currency marker. Precision tightens as
// the price grows; sub-cent prices keep up to 8 decimals with trailing zeros
// stripped.
func FormatPrice(p *float64) string {
	if p == nil {
		return Placeholder
	}
	v := *p
	switch {
	case v >= 100:
		return "$" + utils.AddCommas(fmt.Sprintf("%.2f", v))
	case v >= 1:
		return "$" + utils.AddCommas(fmt.Sprintf("%.3f", v))
	case v >= 0.1:
		return fmt.Sprintf("$%.4f", v)
	default:
		s := strings.TrimRight(fmt.Sprintf("%.8f", v), "0")
		s = strings.TrimRight(s, ".")
		return "$" + s
	}
}

// FormatPct renders a percent change in the 2-decimal tabular form.
func FormatPct(x *float64) string {
	if x == nil {
		return Placeholder
	}
	return fmt.Sprintf("%+.2f%%", *x)
}

// FormatChanges renders the compact marquee form of the 5m/24h changes.
func FormatChanges(m5, h24 *float64) string {
	m5s, h24s := Placeholder, Placeholder
	if m5 != nil {
		m5s = fmt.Sprintf("%+.0f%%", *m5)
	}
	if h24 != nil {
		h24s = fmt.Sprintf("%+.0f%%", *h24)
	}
	return fmt.Sprintf("%s last 5m / %s last 24h", m5s, h24s)
}

// ShortAddr shortens a long address to its first 6 and last 4 characters.
func ShortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// DisplayName resolves the name shown for a token: the custom name when the
// profile opts into custom names and one is set, else the cached feed name,
// else a shortened address.
func DisplayName(s *config.State, ps config.ProfileSettings, t models.Token) string {
	if ps.UseCustomNames {
		if custom := strings.TrimSpace(t.CustomName); custom != "" {
			return custom
		}
	}
	if name := s.TokenNames[t.Key()]; name != "" {
		return name
	}
	return ShortAddr(t.Address)
}

// ResultCache maps profile name -> token key -> latest sample.
type ResultCache map[string]map[string]models.PriceSample

// BuildDisplayItems composes the ordered item list for one monitor: assigned
// profiles in declaration order, tokens in stored order within each profile.
// Recomputed from scratch every round; deterministic for a given state and
// cache. logoPath may be nil.
func BuildDisplayItems(s *config.State, cache ResultCache, monitor int, logoPath func(key string) string) []models.DisplayItem {
	var items []models.DisplayItem
	for _, p := range s.Profiles {
		ps := s.SettingsFor(p.Name)
		if ps.MonitorIndex == nil || *ps.MonitorIndex != monitor || len(p.Tokens) == 0 {
			continue
		}
		for _, t := range p.Tokens {
			key := t.Key()
			var sample models.PriceSample
			if prof := cache[p.Name]; prof != nil {
				sample = prof[key]
			}
			item := models.DisplayItem{
				Key:       p.Name + "|" + key,
				TokenKey:  key,
				Name:      DisplayName(s, ps, t),
				PriceText: FormatPrice(sample.Price),
				Changes:   FormatChanges(sample.Change5m, sample.Change24h),
				Separator: ps.SeparatorText,
				Style: models.ItemStyle{
					FontColor:   ps.FontColor,
					FontPx:      ps.FontPx,
					ShowLogo:    ps.ShowLogo,
					BoldName:    ps.BoldName,
					BoldPrice:   ps.BoldPrice,
					BoldChanges: ps.BoldChanges,
				},
			}
			if logoPath != nil {
				item.LogoPath = logoPath(key)
			}
			items = append(items, item)
		}
	}
	return items
}

// BarPropsFor aggregates monitor-wide properties from the profiles assigned
// to it: opacity is the maximum, click-through holds only when every profile
// allows it, and logos are wanted if any profile shows them.
func BarPropsFor(s *config.State, profiles []string) models.BarProps {
	props := models.BarProps{Opacity: 0.7, ClickThrough: true}
	for i, name := range profiles {
		ps := s.SettingsFor(name)
		if i == 0 || ps.Opacity > props.Opacity {
			props.Opacity = ps.Opacity
		}
		if !ps.ClickThrough {
			props.ClickThrough = false
		}
		if ps.ShowLogo {
			props.WantLogos = true
		}
	}
	return props
}
