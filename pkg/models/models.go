package models

import "strings"

// Token is one tracked token inside a profile.
type Token struct {
	NetworkID  string `json:"network_id"`
	Address    string `json:"address"`
	CustomName string `json:"custom_name,omitempty"`
}

// NormalizeAddress canonicalizes a token address. Hex-style addresses are
// case-insensitive on chain, so they are lower-cased; every other address
// format is returned unchanged. Idempotent.
func NormalizeAddress(addr string) string {
	if addr == "" {
		return addr
	}
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return strings.ToLower(addr)
	}
	return addr
}

// KeyFor builds the canonical cache identity for a token on a network.
func KeyFor(networkID, addr string) string {
	return networkID + ":" + NormalizeAddress(addr)
}

// Key returns the token's canonical cache identity.
func (t Token) Key() string {
	return KeyFor(t.NetworkID, t.Address)
}

// SanitizeKey makes a token key safe for use as a file name.
func SanitizeKey(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

// PriceSample is one fetched price observation. Any field may be unknown;
// unknown renders as a placeholder, never as zero.
type PriceSample struct {
	Price     *float64 `json:"price"`
	Change5m  *float64 `json:"change_5m"`
	Change24h *float64 `json:"change_24h"`
}

// BatchResult is the outcome of one batched feed request for one network.
// Samples are keyed by canonical token key. Names and IconURLs carry whatever
// metadata the response happened to reveal.
type BatchResult struct {
	NetworkID string
	Samples   map[string]PriceSample
	Names     map[string]string
	IconURLs  map[string]string
	Err       error
}

// ItemStyle carries the per-profile visual settings a display item renders with.
type ItemStyle struct {
	FontColor   string
	FontPx      int
	ShowLogo    bool
	BoldName    bool
	BoldPrice   bool
	BoldChanges bool
}

// DisplayItem is one entry of a composed per-monitor item list. Key is scoped
// by profile so the same token in two profiles on one monitor stays two
// independent items.
type DisplayItem struct {
	Key       string // profile + "|" + token key
	TokenKey  string
	Name      string
	PriceText string
	Changes   string
	Separator string
	Style     ItemStyle
	LogoPath  string // empty until the logo cache has the image on disk
}

// BarProps are the monitor-wide properties derived from the profiles assigned
// to one bar.
type BarProps struct {
	Opacity      float64
	ClickThrough bool
	WantLogos    bool
}

// Network is one entry of the read-only networks catalog.
type Network struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	EVM  bool   `json:"evm,omitempty"`
}

// TokenInfo is the result of a single-token info lookup.
type TokenInfo struct {
	Name string
	Err  error
}
