package ticker

import (
	"strings"
	"time"

	"cryptick/pkg/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	// FrameInterval is the render tick cadence hosts should drive Tick at.
	FrameInterval = time.Second / 60

	// maxStaticItems is the item count above which the bar always scrolls.
	maxStaticItems = 10

	// edgeMargin is subtracted from the bar width before the overflow check.
	edgeMargin = 20

	itemGap = "    "
)

// Bar renders one monitor's composed item list as a single full-width line.
// It keeps items keyed by identity so updates restyle in place instead of
// destroying and recreating, and it scrolls only when content overflows.
// The host drives it through SetItems, SetWidth and Tick only.
type Bar struct {
	monitor int
	width   int

	items map[string]*barItem
	order []string

	offset  int
	marquee bool
	props   models.BarProps
}

type barItem struct {
	item     models.DisplayItem
	rendered string
}

func NewBar(monitor, width int) *Bar {
	return &Bar{
		monitor: monitor,
		width:   width,
		items:   map[string]*barItem{},
		props:   models.BarProps{Opacity: 0.7, ClickThrough: true},
	}
}

func (b *Bar) Monitor() int { return b.monitor }

// SetWidth applies a geometry change (resize, monitor hot-plug) and reflows.
func (b *Bar) SetWidth(w int) {
	b.width = w
	b.updateMode()
}

// SetItems reconciles the bar against a freshly composed list: surviving
// identities are retexted and restyled in place, missing ones are dropped,
// new ones appended, and the final order always matches the composer's.
func (b *Bar) SetItems(items []models.DisplayItem, props models.BarProps) {
	b.props = props

	incoming := make(map[string]bool, len(items))
	for _, it := range items {
		incoming[it.Key] = true
		if existing, ok := b.items[it.Key]; ok {
			existing.item = it
			existing.rendered = renderItem(it)
		} else {
			b.items[it.Key] = &barItem{item: it, rendered: renderItem(it)}
		}
	}
	for key := range b.items {
		if !incoming[key] {
			delete(b.items, key)
		}
	}
	b.order = b.order[:0]
	for _, it := range items {
		b.order = append(b.order, it.Key)
	}

	b.updateMode()
}

// Tick advances the scroll by one cell. It is a no-op outside marquee mode.
func (b *Bar) Tick() {
	if !b.marquee {
		return
	}
	if cw := b.contentWidth(); cw > 0 {
		b.offset = (b.offset + 1) % cw
	}
}

// updateMode recomputes marquee engagement after every item-list or geometry
// change: too many items, or content wider than the bar minus the margin.
func (b *Bar) updateMode() {
	engaged := len(b.order) > maxStaticItems || b.contentWidth() > b.width-edgeMargin
	if !engaged && b.marquee {
		b.offset = 0
	}
	b.marquee = engaged
}

// Marquee reports whether the bar is currently scrolling.
func (b *Bar) Marquee() bool { return b.marquee }

// Offset returns the current scroll offset in cells.
func (b *Bar) Offset() int { return b.offset }

// Props returns the monitor-wide properties the host applies (background
// opacity, click-through).
func (b *Bar) Props() models.BarProps { return b.props }

// Keys returns the current left-to-right item identities.
func (b *Bar) Keys() []string {
	return append([]string(nil), b.order...)
}

// Item returns the stored item for an identity, if present.
func (b *Bar) Item(key string) (models.DisplayItem, bool) {
	if bi, ok := b.items[key]; ok {
		return bi.item, true
	}
	return models.DisplayItem{}, false
}

func (b *Bar) content() string {
	if len(b.order) == 0 {
		return ""
	}
	parts := make([]string, 0, len(b.order))
	for _, key := range b.order {
		parts = append(parts, b.items[key].rendered)
	}
	return strings.Join(parts, itemGap) + itemGap
}

func (b *Bar) contentWidth() int {
	return lipgloss.Width(b.content())
}

// View renders the bar at its current width: centered when static, or a
// wrapped scrolling window over the content when in marquee mode. Terminals
// have no real translucency, so a low aggregate opacity renders the whole
// line faint instead.
func (b *Bar) View() string {
	content := b.content()
	if content == "" {
		return strings.Repeat(" ", b.width)
	}
	var line string
	if !b.marquee {
		line = lipgloss.PlaceHorizontal(b.width, lipgloss.Center, content)
	} else {
		// Double the track so the window can wrap across the seam.
		track := content + content
		shifted := ansi.TruncateLeft(track, b.offset, "")
		line = ansi.Truncate(shifted, b.width, "")
	}
	if b.props.Opacity < 0.5 {
		line = lipgloss.NewStyle().Faint(true).Render(line)
	}
	return line
}

// renderItem styles one item: name, price and changes with their independent
// bold flags, the profile separator, and a marker glyph when the token's logo
// is cached and wanted.
func renderItem(it models.DisplayItem) string {
	base := lipgloss.NewStyle().Foreground(lipgloss.Color(it.Style.FontColor))
	bold := base.Bold(true)
	seg := func(s string, b bool) string {
		if b {
			return bold.Render(s)
		}
		return base.Render(s)
	}

	var sb strings.Builder
	if it.Style.ShowLogo && it.LogoPath != "" {
		sb.WriteString(base.Render("◆ "))
	}
	sb.WriteString(seg(it.Name, it.Style.BoldName))
	sb.WriteString(base.Render(" • "))
	sb.WriteString(seg(it.PriceText, it.Style.BoldPrice))
	sb.WriteString(base.Render(" • "))
	sb.WriteString(seg(it.Changes, it.Style.BoldChanges))
	if it.Separator != "" {
		sb.WriteString(base.Render(" " + it.Separator))
	}
	return sb.String()
}

// PlainItemText is the unstyled form of an item's text, exposed for width
// reasoning and tests.
func PlainItemText(it models.DisplayItem) string {
	s := it.Name + " • " + it.PriceText + " • " + it.Changes
	if it.Separator != "" {
		s += " " + it.Separator
	}
	return s
}
