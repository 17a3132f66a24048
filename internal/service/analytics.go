package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/carrierdesk/backend/internal/models"
)

// AnalyticsSource is the read-side slice of the store the analytics service
// needs. *db.Store satisfies it; tests use an in-memory fake.
type AnalyticsSource interface {
	BookedCallsSince(ctx context.Context, since time.Time) ([]models.Call, error)
	FailedCallsSince(ctx context.Context, since time.Time) ([]models.Call, error)
	AllCallsSince(ctx context.Context, since time.Time) ([]models.Call, error)
	AvailableLoadCountsByEquipment(ctx context.Context) (map[string]int, error)
	RecentCallCountsByEquipment(ctx context.Context, since time.Time) (map[string]int, error)
}

// All figures cover a rolling 30-day window ending now.
const analyticsWindowDays = 30

type AnalyticsService struct {
	Source AnalyticsSource
	Logger zerolog.Logger
}

// GetAnalytics recomputes the full snapshot from scratch. The four
// aggregations are independent; empty inputs yield empty lists, never errors.
func (s *AnalyticsService) GetAnalytics(ctx context.Context) (models.AnalyticsSnapshot, error) {
	since := time.Now().UTC().AddDate(0, 0, -analyticsWindowDays)

	booked, err := s.Source.BookedCallsSince(ctx, since)
	if err != nil {
		return models.AnalyticsSnapshot{}, err
	}
	failed, err := s.Source.FailedCallsSince(ctx, since)
	if err != nil {
		return models.AnalyticsSnapshot{}, err
	}
	all, err := s.Source.AllCallsSince(ctx, since)
	if err != nil {
		return models.AnalyticsSnapshot{}, err
	}
	demand, err := s.Source.AvailableLoadCountsByEquipment(ctx)
	if err != nil {
		return models.AnalyticsSnapshot{}, err
	}
	supply, err := s.Source.RecentCallCountsByEquipment(ctx, since)
	if err != nil {
		return models.AnalyticsSnapshot{}, err
	}

	return models.AnalyticsSnapshot{
		NegotiationDepth:      NegotiationDepth(booked),
		CarrierObjections:     CarrierObjections(failed, all),
		TopLanes:              TopLanes(all),
		EquipmentDemandSupply: EquipmentBalance(demand, supply),
	}, nil
}

// roundPct rounds half-to-even, matching the dashboard's reference figures.
func roundPct(count, total int) int {
	return int(math.RoundToEven(float64(count) / float64(total) * 100))
}

var depthLabels = map[int]string{
	0: "1st offer",
	1: "1 round",
	2: "2 rounds",
	3: "3 rounds (max)",
}

func depthLabel(depth int) string {
	if label, ok := depthLabels[depth]; ok {
		return label
	}
	return fmt.Sprintf("%d rounds", depth)
}

// NegotiationDepth buckets booked calls by how many negotiation rounds it
// took to close, clamping everything past 3 into the max bucket.
func NegotiationDepth(booked []models.Call) []models.NegotiationDepthBucket {
	out := []models.NegotiationDepthBucket{}
	if len(booked) == 0 {
		return out
	}

	buckets := map[int]int{}
	for _, c := range booked {
		depth := c.Rounds()
		if depth > 3 {
			depth = 3
		}
		buckets[depth]++
	}

	depths := make([]int, 0, len(buckets))
	for d := range buckets {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	total := len(booked)
	for _, d := range depths {
		out = append(out, models.NegotiationDepthBucket{
			Round: depthLabel(d),
			Pct:   roundPct(buckets[d], total),
		})
	}
	return out
}

// CarrierObjections ranks the reasons carriers decline. The failed set covers
// negotiation_failed and dropped_call; no_loads_available has to come from
// the unfiltered window because storage never classifies it as a failure.
func CarrierObjections(failed, all []models.Call) []models.CarrierObjection {
	counts := map[string]int{}
	var order []string
	bump := func(reason string) {
		if _, seen := counts[reason]; !seen {
			order = append(order, reason)
		}
		counts[reason]++
	}

	for _, c := range failed {
		switch c.Outcome {
		case models.OutcomeNegotiationFail:
			bump("Rate too low")
		case models.OutcomeDroppedCall:
			bump("Call dropped")
		}
	}
	for _, c := range all {
		if c.Outcome == models.OutcomeNoLoadsAvailable {
			bump("No matching loads")
		}
	}

	out := []models.CarrierObjection{}
	if len(order) == 0 {
		return out
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	// Descending by count; ties keep first-encountered order.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	for _, reason := range order {
		out = append(out, models.CarrierObjection{
			Reason: reason,
			Count:  counts[reason],
			Pct:    roundPct(counts[reason], total),
		})
	}
	return out
}

type laneStats struct {
	calls    int
	bookings int
	rateSum  float64
	rateN    int
}

// TopLanes ranks the five highest-volume lanes in the window. Booked calls
// contribute a rate observation: the agreed rate from the booking when the
// join matched, otherwise the call's own final rate.
func TopLanes(all []models.Call) []models.TopLane {
	stats := map[string]*laneStats{}
	var order []string

	for _, c := range all {
		if c.LaneOrigin == nil || *c.LaneOrigin == "" || c.LaneDestination == nil || *c.LaneDestination == "" {
			continue
		}
		lane := *c.LaneOrigin + " → " + *c.LaneDestination
		ls, seen := stats[lane]
		if !seen {
			ls = &laneStats{}
			stats[lane] = ls
			order = append(order, lane)
		}
		ls.calls++

		if c.Outcome != models.OutcomeBooked {
			continue
		}
		ls.bookings++
		rate := c.AgreedRate
		if rate == nil {
			rate = c.FinalRate
		}
		if rate != nil {
			ls.rateSum += *rate
			ls.rateN++
		}
	}

	out := []models.TopLane{}
	if len(order) == 0 {
		return out
	}

	sort.SliceStable(order, func(i, j int) bool {
		return stats[order[i]].calls > stats[order[j]].calls
	})
	if len(order) > 5 {
		order = order[:5]
	}

	for _, lane := range order {
		ls := stats[lane]
		avgRate := "$0"
		if ls.rateN > 0 {
			avg := ls.rateSum / float64(ls.rateN)
			avgRate = "$" + humanize.Comma(int64(math.RoundToEven(avg)))
		}
		out = append(out, models.TopLane{
			Lane:     lane,
			Calls:    ls.calls,
			Bookings: ls.bookings,
			AvgRate:  avgRate,
		})
	}
	return out
}

var equipmentLabels = map[string]string{
	"dry_van":    "Dry Van",
	"reefer":     "Reefer",
	"flatbed":    "Flatbed",
	"step_deck":  "Step Deck",
	"power_only": "Power Only",
}

func equipmentLabel(raw string) string {
	if label, ok := equipmentLabels[raw]; ok {
		return label
	}
	words := strings.Fields(strings.ReplaceAll(raw, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// EquipmentBalance compares open load inventory ("demand") against recent
// call volume ("supply") per equipment type. Each side normalizes against
// its own total; a zero total leaves that side's percentages at zero.
func EquipmentBalance(demand, supply map[string]int) []models.EquipmentDemandSupply {
	types := map[string]bool{}
	for eq := range demand {
		types[eq] = true
	}
	for eq := range supply {
		types[eq] = true
	}

	out := []models.EquipmentDemandSupply{}
	if len(types) == 0 {
		return out
	}

	sorted := make([]string, 0, len(types))
	for eq := range types {
		sorted = append(sorted, eq)
	}
	sort.Strings(sorted)

	demandTotal := 0
	for _, n := range demand {
		demandTotal += n
	}
	supplyTotal := 0
	for _, n := range supply {
		supplyTotal += n
	}

	pct := func(count, total int) int {
		if total == 0 {
			return 0
		}
		return roundPct(count, total)
	}

	for _, eq := range sorted {
		out = append(out, models.EquipmentDemandSupply{
			Type:   equipmentLabel(eq),
			Demand: pct(demand[eq], demandTotal),
			Supply: pct(supply[eq], supplyTotal),
		})
	}

	// Ties keep the alphabetical order from above.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Demand > out[j].Demand
	})
	return out
}
