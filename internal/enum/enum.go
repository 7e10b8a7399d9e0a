package enum

// Location selects which per-location price list and delivery fee applies.
// The zero value means "not chosen yet".
type Location string

// ── Service regions ──

const (
	LocationParkLane  Location = "PARK_LANE"
	LocationDocklands Location = "DOCKLANDS"
)

// Locations lists the regions the seeded catalog prices. Other locations are
// accepted anywhere a Location is; they just fall back to default fees.
var Locations = []Location{LocationParkLane, LocationDocklands}

// ── Order state machine (CHECK constrained in DB) ──

const (
	OrderStatusNew       = "NEW"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

// ── Push / broker event types ──

const (
	EventQuoteUpdated   = "quote.updated"
	EventFlowClosed     = "flow.closed"
	EventOrderSubmitted = "order.submitted"
)
