package domain

import (
	"time"
)

// Entry is a geolocated key stored in the canonical entry store and
// mirrored into the queryable geo index.
type Entry struct {
	Key       string         `json:"key"`
	Location  GeoPoint       `json:"location"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Route is a named, stored polyline that can be analyzed on demand.
type Route struct {
	ID        string        `json:"id"`
	Slug      string        `json:"slug"`
	Name      string        `json:"name"`
	Shape     GeoLineString `json:"shape"`
	LengthM   float64       `json:"length_m"`
	CreatedAt time.Time     `json:"created_at"`
}

// EntryStats summarizes the entry store.
type EntryStats struct {
	Total       int64      `json:"total"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// EntryEvent is published when an entry is upserted or removed.
type EntryEvent struct {
	Key      string    `json:"key"`
	Location *GeoPoint `json:"location,omitempty"`
	Removed  bool      `json:"removed"`
	Time     time.Time `json:"time"`
}

// AnalysisEvent is published after a corridor analysis completes.
type AnalysisEvent struct {
	AnalysisID   string    `json:"analysis_id"`
	RouteSlug    string    `json:"route_slug,omitempty"`
	BufferWidthM float64   `json:"buffer_width_m"`
	Legs         int       `json:"legs"`
	SamplePoints int       `json:"sample_points"`
	Matches      int       `json:"matches"`
	DurationMS   int64     `json:"duration_ms"`
	Time         time.Time `json:"time"`
}
