package constants

import "time"

// Donation collection defaults
const (
	// DonationCollection is the name of the persisted donation collection
	DonationCollection = "donations"
	// AnonymousDonor is shown in place of an empty donor name
	AnonymousDonor = "Anonymous"
	// LocationUnavailable is shown for records without a usable location
	LocationUnavailable = "Location not available"
)

// Status colours used on map markers and dashboard badges.
const (
	ColorAmber   = "#FFA000"
	ColorBlue    = "#2196F3"
	ColorGreen   = "#4CAF50"
	ColorNeutral = "#757575"
)

// Dashboard action labels
const (
	ActionAccept  = "Accept Donation"
	ActionDeliver = "Mark as Delivered"
)

// Map defaults. The fallback region is the one the tracking map opens on
// before any donation has a usable location.
const (
	DefaultRegionLatitude  = 10.3157
	DefaultRegionLongitude = 123.8854
	DefaultRegionDelta     = 0.1
	DefaultEdgePadding     = 50
)

// Service defaults
const (
	DefaultSnapshotTopic   = "relief/donations/snapshot"
	DefaultMarkersTopic    = "relief/donations/markers"
	DefaultMetricsTopic    = "relief/donations/metrics"
	DefaultMetricsInterval = 30 * time.Second
	DefaultArchiveInterval = 5 * time.Minute
	DefaultDashboardPool   = 4
)

// Messages shown to donors and operators
const (
	MessageStatusUpdated    = "Donation status updated to %s"
	MessageStatusFailed     = "Failed to update donation status"
	MessageAccessDenied     = "Incorrect admin code."
	MessageDonationSent     = "Donation submitted!"
	MessageDonationFailed   = "Failed to submit donation."
	MessageLocationDenied   = "Location permission is required."
	MessageNotAuthorized    = "Operator access is required."
	MessageUnknownDonation  = "Donation not found."
	MessageAlreadyUpdating  = "An update for this donation is already in progress."
	MessageAlreadyDelivered = "Donation can no longer be advanced."
)
