package watcher

import "cryptick/pkg/models"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventStatusUpdated EventType = "status_updated"
	EventDetailUpdated EventType = "detail_updated"
	EventItemsComposed EventType = "items_composed"
	EventProfileCycled EventType = "profile_cycled"
	EventBarsCleared   EventType = "bars_cleared"
)

// Event represents a scheduler event.
type Event struct {
	Type EventType
	Data interface{}
}

// StatusData carries a user-visible status line.
type StatusData struct {
	Message string
}

// DetailData is the merged cache for one profile, pushed to live detail views
// after the profile's batches land.
type DetailData struct {
	Profile string
	Samples map[string]models.PriceSample
}

// ItemsData is a freshly composed item list for one monitor.
type ItemsData struct {
	Monitor int
	Items   []models.DisplayItem
	Props   models.BarProps
}

// CycleData announces a new active profile.
type CycleData struct {
	Profile string
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
