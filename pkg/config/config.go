package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cryptick/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

const StateFileName = ".cryptick.json"

// Profile is a named, ordered collection of tokens. Order is user-controlled
// and is the authoritative display order for the profile's tokens.
type Profile struct {
	Name   string         `json:"name"`
	Tokens []models.Token `json:"tokens"`
}

// ProfileSettings holds the per-profile display settings. Instances handed to
// consumers are always fully populated; defaults are resolved once at load.
type ProfileSettings struct {
	MonitorIndex   *int    `json:"monitor_index"` // nil => not shown and not refreshed
	Opacity        float64 `json:"opacity"`
	FontFamily     string  `json:"font_family"`
	FontPx         int     `json:"font_px"`
	FontColor      string  `json:"font_color"`
	ClickThrough   bool    `json:"click_through"`
	ShowLogo       bool    `json:"show_logo"`
	RefreshSec     int     `json:"refresh_sec"`
	UseCustomNames bool    `json:"use_custom_names"`
	SeparatorText  string  `json:"separator_text"`
	BoldName       bool    `json:"bold_name"`
	BoldPrice      bool    `json:"bold_price"`
	BoldChanges    bool    `json:"bold_changes"`
}

// GlobalSettings holds application-wide defaults applied to new profiles.
type GlobalSettings struct {
	RefreshSec int     `json:"refresh_sec"`
	Opacity    float64 `json:"opacity"`
	FontFamily string  `json:"font_family"`
	FontPx     int     `json:"font_px"`
	FontColor  string  `json:"font_color"`
	Hotkey     string  `json:"hotkey"`
}

// State is the full persisted application state. Profiles keep declaration
// order, which the scheduler and composer rely on.
type State struct {
	Profiles        []Profile                  `json:"profiles"`
	ActiveProfile   string                     `json:"active_profile"`
	TokenNames      map[string]string          `json:"token_names"`
	TokenLogos      map[string]string          `json:"token_logos"`
	ProfileSettings map[string]ProfileSettings `json:"profile_settings"`
	Settings        GlobalSettings             `json:"settings"`
}

// DefaultState returns the state written on first run.
func DefaultState() *State {
	s := &State{
		Profiles: []Profile{
			{Name: "High Risk Assets"},
			{Name: "Medium Risk Assets"},
			{Name: "Low Risk Assets"},
		},
		ActiveProfile:   "High Risk Assets",
		TokenNames:      map[string]string{},
		TokenLogos:      map[string]string{},
		ProfileSettings: map[string]ProfileSettings{},
		Settings:        defaultGlobalSettings(),
	}
	for _, p := range s.Profiles {
		s.EnsureProfileSettings(p.Name)
	}
	return s
}

func defaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		RefreshSec: 30,
		Opacity:    0.5,
		FontFamily: "Open Sans",
		FontPx:     15,
		FontColor:  "#FFFFFF",
		Hotkey:     "F8",
	}
}

// EnsureProfileSettings fills in a fully-populated settings record for the
// named profile, deriving missing values from the global settings, and
// returns it.
func (s *State) EnsureProfileSettings(name string) ProfileSettings {
	if s.ProfileSettings == nil {
		s.ProfileSettings = map[string]ProfileSettings{}
	}
	ps, ok := s.ProfileSettings[name]
	if !ok {
		ps = ProfileSettings{
			MonitorIndex:   nil,
			Opacity:        s.Settings.Opacity,
			FontFamily:     s.Settings.FontFamily,
			FontPx:         s.Settings.FontPx,
			FontColor:      s.Settings.FontColor,
			ClickThrough:   true,
			ShowLogo:       true,
			RefreshSec:     s.Settings.RefreshSec,
			UseCustomNames: false,
			SeparatorText:  "|",
			BoldName:       true,
			BoldPrice:      false,
			BoldChanges:    false,
		}
		s.ProfileSettings[name] = ps
	}
	return ps
}

// SettingsFor returns the settings for a profile, creating defaults if the
// profile has none yet.
func (s *State) SettingsFor(name string) ProfileSettings {
	return s.EnsureProfileSettings(name)
}

// Profile returns the profile with the given name, or nil.
func (s *State) Profile(name string) *Profile {
	for i := range s.Profiles {
		if s.Profiles[i].Name == name {
			return &s.Profiles[i]
		}
	}
	return nil
}

// ProfileNames returns profile names in declaration order.
func (s *State) ProfileNames() []string {
	names := make([]string, len(s.Profiles))
	for i, p := range s.Profiles {
		names[i] = p.Name
	}
	return names
}

// CycleActiveProfile advances the active profile to the next one in
// declaration order, wrapping around. Monitor assignments are untouched.
func (s *State) CycleActiveProfile() string {
	if len(s.Profiles) == 0 {
		return s.ActiveProfile
	}
	idx := -1
	for i, p := range s.Profiles {
		if p.Name == s.ActiveProfile {
			idx = i
			break
		}
	}
	s.ActiveProfile = s.Profiles[(idx+1)%len(s.Profiles)].Name
	return s.ActiveProfile
}

// Clone returns a deep copy, used by the scheduler to take per-round
// snapshots that the UI cannot mutate mid-round.
func (s *State) Clone() *State {
	cp := &State{
		ActiveProfile:   s.ActiveProfile,
		Settings:        s.Settings,
		Profiles:        make([]Profile, len(s.Profiles)),
		TokenNames:      make(map[string]string, len(s.TokenNames)),
		TokenLogos:      make(map[string]string, len(s.TokenLogos)),
		ProfileSettings: make(map[string]ProfileSettings, len(s.ProfileSettings)),
	}
	for i, p := range s.Profiles {
		cp.Profiles[i] = Profile{Name: p.Name, Tokens: append([]models.Token(nil), p.Tokens...)}
	}
	for k, v := range s.TokenNames {
		cp.TokenNames[k] = v
	}
	for k, v := range s.TokenLogos {
		cp.TokenLogos[k] = v
	}
	for k, v := range s.ProfileSettings {
		if v.MonitorIndex != nil {
			idx := *v.MonitorIndex
			v.MonitorIndex = &idx
		}
		cp.ProfileSettings[k] = v
	}
	return cp
}

func GetStatePath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, StateFileName), nil
}

// LoadStateFromFile loads the state file, writing defaults on first run.
func LoadStateFromFile(path string) (*State, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		s := DefaultState()
		if err := SaveState(s, path); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadState(f)
}

// LoadState decodes a state document and resolves every default so no
// partially-populated record ever reaches a consumer.
func LoadState(r io.Reader) (*State, error) {
	var raw struct {
		Profiles        []Profile                  `json:"profiles"`
		ActiveProfile   string                     `json:"active_profile"`
		TokenNames      map[string]string          `json:"token_names"`
		TokenLogos      map[string]string          `json:"token_logos"`
		ProfileSettings map[string]json.RawMessage `json:"profile_settings"`
		Settings        struct {
			RefreshSec *int     `json:"refresh_sec"`
			Opacity    *float64 `json:"opacity"`
			FontFamily *string  `json:"font_family"`
			FontPx     *int     `json:"font_px"`
			FontColor  *string  `json:"font_color"`
			Hotkey     *string  `json:"hotkey"`
		} `json:"settings"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	s := &State{
		Profiles:        raw.Profiles,
		ActiveProfile:   raw.ActiveProfile,
		TokenNames:      raw.TokenNames,
		TokenLogos:      raw.TokenLogos,
		ProfileSettings: map[string]ProfileSettings{},
		Settings:        defaultGlobalSettings(),
	}
	if s.TokenNames == nil {
		s.TokenNames = map[string]string{}
	}
	if s.TokenLogos == nil {
		s.TokenLogos = map[string]string{}
	}
	if raw.Settings.RefreshSec != nil {
		s.Settings.RefreshSec = *raw.Settings.RefreshSec
	}
	if raw.Settings.Opacity != nil {
		s.Settings.Opacity = *raw.Settings.Opacity
	}
	if raw.Settings.FontFamily != nil {
		s.Settings.FontFamily = *raw.Settings.FontFamily
	}
	if raw.Settings.FontPx != nil {
		s.Settings.FontPx = *raw.Settings.FontPx
	}
	if raw.Settings.FontColor != nil {
		s.Settings.FontColor = *raw.Settings.FontColor
	}
	if raw.Settings.Hotkey != nil {
		s.Settings.Hotkey = *raw.Settings.Hotkey
	}

	if len(s.Profiles) == 0 {
		s.Profiles = DefaultState().Profiles
		s.ActiveProfile = ""
	}
	if s.Profile(s.ActiveProfile) == nil {
		s.ActiveProfile = s.Profiles[0].Name
	}

	for i := range s.Profiles {
		p := &s.Profiles[i]
		for j := range p.Tokens {
			p.Tokens[j].Address = models.NormalizeAddress(p.Tokens[j].Address)
		}
		s.ProfileSettings[p.Name] = decodeProfileSettings(raw.ProfileSettings[p.Name], s.Settings)
	}
	return s, nil
}

// decodeProfileSettings resolves one profile's settings record against the
// global defaults. Unknown or missing fields fall back, so old state files
// keep loading.
func decodeProfileSettings(data json.RawMessage, g GlobalSettings) ProfileSettings {
	var raw struct {
		MonitorIndex   *int     `json:"monitor_index"`
		Opacity        *float64 `json:"opacity"`
		FontFamily     *string  `json:"font_family"`
		FontPx         *int     `json:"font_px"`
		FontColor      *string  `json:"font_color"`
		ClickThrough   *bool    `json:"click_through"`
		ShowLogo       *bool    `json:"show_logo"`
		RefreshSec     *int     `json:"refresh_sec"`
		UseCustomNames *bool    `json:"use_custom_names"`
		SeparatorText  *string  `json:"separator_text"`
		BoldName       *bool    `json:"bold_name"`
		BoldPrice      *bool    `json:"bold_price"`
		BoldChanges    *bool    `json:"bold_changes"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &raw)
	}
	ps := ProfileSettings{
		MonitorIndex:   raw.MonitorIndex,
		Opacity:        g.Opacity,
		FontFamily:     g.FontFamily,
		FontPx:         g.FontPx,
		FontColor:      g.FontColor,
		ClickThrough:   true,
		ShowLogo:       true,
		RefreshSec:     g.RefreshSec,
		UseCustomNames: false,
		SeparatorText:  "|",
		BoldName:       true,
		BoldPrice:      false,
		BoldChanges:    false,
	}
	if raw.Opacity != nil {
		ps.Opacity = *raw.Opacity
	}
	if raw.FontFamily != nil {
		ps.FontFamily = *raw.FontFamily
	}
	if raw.FontPx != nil {
		ps.FontPx = *raw.FontPx
	}
	if raw.FontColor != nil {
		ps.FontColor = *raw.FontColor
	}
	if raw.ClickThrough != nil {
		ps.ClickThrough = *raw.ClickThrough
	}
	if raw.ShowLogo != nil {
		ps.ShowLogo = *raw.ShowLogo
	}
	if raw.RefreshSec != nil {
		ps.RefreshSec = *raw.RefreshSec
	}
	if raw.UseCustomNames != nil {
		ps.UseCustomNames = *raw.UseCustomNames
	}
	if raw.SeparatorText != nil {
		ps.SeparatorText = *raw.SeparatorText
	}
	if raw.BoldName != nil {
		ps.BoldName = *raw.BoldName
	}
	if raw.BoldPrice != nil {
		ps.BoldPrice = *raw.BoldPrice
	}
	if raw.BoldChanges != nil {
		ps.BoldChanges = *raw.BoldChanges
	}
	return ps
}

// SaveState validates and writes the state atomically, keeping a timestamped
// backup of the previous file.
func SaveState(s *State, path string) error {
	if errs := ValidateState(s, nil); len(errs) > 0 {
		return fmt.Errorf("validation failed: %s", errs[0])
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing state for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup state: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ValidateState reports structural problems as human-readable strings. When a
// networks catalog is supplied, token addresses on EVM networks must be
// well-formed hex addresses.
func ValidateState(s *State, networks []models.Network) []string {
	var problems []string
	if len(s.Profiles) == 0 {
		problems = append(problems, "state must have at least one profile")
	}
	seen := map[string]bool{}
	evm := map[string]bool{}
	for _, n := range networks {
		evm[n.ID] = n.EVM
	}
	for i, p := range s.Profiles {
		if strings.TrimSpace(p.Name) == "" {
			problems = append(problems, fmt.Sprintf("profile at index %d has no name", i))
		}
		if seen[p.Name] {
			problems = append(problems, fmt.Sprintf("duplicate profile name %q", p.Name))
		}
		seen[p.Name] = true
		for j, t := range p.Tokens {
			if t.NetworkID == "" {
				problems = append(problems, fmt.Sprintf("profile %q token %d has no network", p.Name, j))
			}
			if t.Address == "" {
				problems = append(problems, fmt.Sprintf("profile %q token %d has no address", p.Name, j))
			}
			if evm[t.NetworkID] && !common.IsHexAddress(t.Address) {
				problems = append(problems, fmt.Sprintf("profile %q token %d: %q is not a valid hex address", p.Name, j, t.Address))
			}
		}
		if ps, ok := s.ProfileSettings[p.Name]; ok {
			if ps.Opacity < 0 || ps.Opacity > 1 {
				problems = append(problems, fmt.Sprintf("profile %q opacity %v out of range", p.Name, ps.Opacity))
			}
			if ps.RefreshSec < 0 {
				problems = append(problems, fmt.Sprintf("profile %q refresh interval %d is negative", p.Name, ps.RefreshSec))
			}
		}
	}
	return problems
}

func RestoreLastBackup(statePath string) error {
	matches, err := filepath.Glob(statePath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(statePath, data, 0644)
}
