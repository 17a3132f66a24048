package models

import "time"

// Call outcomes as stored in the calls table.
const (
	OutcomeBooked           = "booked"
	OutcomeNegotiationFail  = "negotiation_failed"
	OutcomeDroppedCall      = "dropped_call"
	OutcomeNoLoadsAvailable = "no_loads_available"
)

// Load statuses.
const (
	LoadAvailable = "available"
	LoadBooked    = "booked"
)

type Call struct {
	CallID            string    `json:"call_id"`
	Outcome           string    `json:"outcome"`
	NegotiationRounds *int      `json:"negotiation_rounds"`
	EquipmentType     *string   `json:"equipment_type"`
	LaneOrigin        *string   `json:"lane_origin"`
	LaneDestination   *string   `json:"lane_destination"`
	FinalRate         *float64  `json:"final_rate"`
	Sentiment         *string   `json:"sentiment"`
	CreatedAt         time.Time `json:"created_at"`

	// AgreedRate is only populated by the all-calls query, which joins
	// booked_loads on call_id. Nil when the call never produced a booking.
	AgreedRate *float64 `json:"agreed_rate,omitempty"`
}

// Rounds returns the negotiation round count, treating NULL as 0.
func (c Call) Rounds() int {
	if c.NegotiationRounds == nil {
		return 0
	}
	return *c.NegotiationRounds
}

type Load struct {
	LoadID        string     `json:"load_id"`
	EquipmentType string     `json:"equipment_type"`
	Status        string     `json:"status"`
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	LoadboardRate float64    `json:"loadboard_rate"`
	BookedAt      *time.Time `json:"booked_at"`
}

type BookedLoad struct {
	ID                   string    `json:"id"`
	LoadID               string    `json:"load_id"`
	MCNumber             string    `json:"mc_number"`
	CarrierName          *string   `json:"carrier_name"`
	AgreedRate           float64   `json:"agreed_rate"`
	AgreedPickupDatetime *string   `json:"agreed_pickup_datetime"`
	OfferID              *string   `json:"offer_id"`
	CallID               *string   `json:"call_id"`
	CreatedAt            time.Time `json:"created_at"`
}

// EnrichedBookedLoad carries the view-time joins against loads and calls.
// The joined fields are nullable because both joins are LEFT JOINs.
type EnrichedBookedLoad struct {
	BookedLoad
	LaneOrigin        *string  `json:"lane_origin"`
	LaneDestination   *string  `json:"lane_destination"`
	EquipmentType     *string  `json:"equipment_type"`
	LoadboardRate     *float64 `json:"loadboard_rate"`
	NegotiationRounds *int     `json:"negotiation_rounds"`
	Sentiment         *string  `json:"sentiment"`
}

type NegotiationDepthBucket struct {
	Round string `json:"round"`
	Pct   int    `json:"pct"`
}

type CarrierObjection struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
	Pct    int    `json:"pct"`
}

type TopLane struct {
	Lane     string `json:"lane"`
	Calls    int    `json:"calls"`
	Bookings int    `json:"bookings"`
	AvgRate  string `json:"avg_rate"`
}

type EquipmentDemandSupply struct {
	Type   string `json:"type"`
	Demand int    `json:"demand"`
	Supply int    `json:"supply"`
}

// AnalyticsSnapshot is assembled fresh per request; none of it is persisted.
type AnalyticsSnapshot struct {
	NegotiationDepth      []NegotiationDepthBucket `json:"negotiation_depth"`
	CarrierObjections     []CarrierObjection       `json:"carrier_objections"`
	TopLanes              []TopLane                `json:"top_lanes"`
	EquipmentDemandSupply []EquipmentDemandSupply  `json:"equipment_demand_supply"`
}
