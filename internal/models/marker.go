package models

// Marker is one map-rendering unit derived from a donation record.
type Marker struct {
	ID         string     `json:"id"`
	Coordinate Coordinate `json:"coordinate"`
	Color      string     `json:"color"`
	Title      string     `json:"title"`
	Detail     string     `json:"detail"`
}

// Bounds is the geographic box enclosing a marker set.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// EdgePadding is the screen margin, in points, kept around fitted bounds.
type EdgePadding struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Viewport is the map region a tracker should display.
type Viewport struct {
	Center         Coordinate  `json:"center"`
	LatitudeDelta  float64     `json:"latitude_delta"`
	LongitudeDelta float64     `json:"longitude_delta"`
	Bounds         *Bounds     `json:"bounds,omitempty"`
	Padding        EdgePadding `json:"padding"`
}

// MarkerSet is what the tracker publishes for map clients.
type MarkerSet struct {
	Revision uint64   `json:"revision"`
	Markers  []Marker `json:"markers"`
	Viewport Viewport `json:"viewport"`
	Refit    bool     `json:"refit"` // true when the membership changed since the last set
}
