package location

// Location is a single position fix.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // metres for geolocation fixes, HDOP for GPS fixes
}
