package service

import (
	"context"
	"testing"
	"time"

	"github.com/carrierdesk/backend/internal/db"
	"github.com/carrierdesk/backend/internal/models"
)

var _ AnalyticsSource = (*db.Store)(nil)

func strp(s string) *string { return &s }

func intp(i int) *int { return &i }

func floatp(f float64) *float64 { return &f }

func bookedCall(rounds int) models.Call {
	return models.Call{Outcome: models.OutcomeBooked, NegotiationRounds: intp(rounds)}
}

func laneCall(origin, dest, outcome string, finalRate *float64) models.Call {
	return models.Call{
		Outcome:         outcome,
		LaneOrigin:      strp(origin),
		LaneDestination: strp(dest),
		FinalRate:       finalRate,
	}
}

func TestNegotiationDepthClampsRounds(t *testing.T) {
	buckets := NegotiationDepth([]models.Call{bookedCall(5), bookedCall(3)})
	if len(buckets) != 1 {
		t.Fatalf("expected one bucket, got %+v", buckets)
	}
	if buckets[0].Round != "3 rounds (max)" {
		t.Fatalf("expected max bucket, got %q", buckets[0].Round)
	}
	if buckets[0].Pct != 100 {
		t.Fatalf("expected 100%%, got %d", buckets[0].Pct)
	}
}

func TestNegotiationDepthOrderingAndLabels(t *testing.T) {
	calls := []models.Call{
		bookedCall(2),
		bookedCall(0),
		{Outcome: models.OutcomeBooked}, // nil rounds counts as 0
		bookedCall(1),
	}
	buckets := NegotiationDepth(calls)
	wantLabels := []string{"1st offer", "1 round", "2 rounds"}
	if len(buckets) != len(wantLabels) {
		t.Fatalf("expected %d buckets, got %+v", len(wantLabels), buckets)
	}
	for i, want := range wantLabels {
		if buckets[i].Round != want {
			t.Fatalf("bucket %d: expected %q, got %q", i, want, buckets[i].Round)
		}
	}
	if buckets[0].Pct != 50 || buckets[1].Pct != 25 || buckets[2].Pct != 25 {
		t.Fatalf("unexpected percentages: %+v", buckets)
	}
}

func TestNegotiationDepthEmpty(t *testing.T) {
	buckets := NegotiationDepth(nil)
	if buckets == nil || len(buckets) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", buckets)
	}
}

func TestCarrierObjectionsRanking(t *testing.T) {
	failed := []models.Call{
		{Outcome: models.OutcomeNegotiationFail},
		{Outcome: models.OutcomeNegotiationFail},
		{Outcome: models.OutcomeDroppedCall},
	}
	all := []models.Call{
		{Outcome: models.OutcomeNoLoadsAvailable},
		{Outcome: models.OutcomeBooked},
	}
	out := CarrierObjections(failed, all)
	want := []models.CarrierObjection{
		{Reason: "Rate too low", Count: 2, Pct: 50},
		{Reason: "Call dropped", Count: 1, Pct: 25},
		{Reason: "No matching loads", Count: 1, Pct: 25},
	}
	if len(out) != len(want) {
		t.Fatalf("expected %d objections, got %+v", len(want), out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("objection %d: expected %+v, got %+v", i, want[i], out[i])
		}
	}
}

func TestCarrierObjectionsTieOrderStable(t *testing.T) {
	failed := []models.Call{
		{Outcome: models.OutcomeDroppedCall},
		{Outcome: models.OutcomeNegotiationFail},
	}
	out := CarrierObjections(failed, nil)
	// Equal counts keep first-encountered order.
	if out[0].Reason != "Call dropped" || out[1].Reason != "Rate too low" {
		t.Fatalf("expected stable tie order, got %+v", out)
	}
}

func TestCarrierObjectionsEmpty(t *testing.T) {
	out := CarrierObjections(nil, []models.Call{{Outcome: models.OutcomeBooked}})
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}
}

func TestTopLanesRankingAndAvgRate(t *testing.T) {
	all := []models.Call{
		laneCall("Dallas", "Atlanta", models.OutcomeBooked, floatp(1000)),
		laneCall("Dallas", "Atlanta", models.OutcomeNegotiationFail, nil),
		laneCall("Chicago", "Denver", models.OutcomeBooked, floatp(500)),
	}
	out := TopLanes(all)
	if len(out) != 2 {
		t.Fatalf("expected 2 lanes, got %+v", out)
	}
	if out[0].Lane != "Dallas → Atlanta" || out[0].Calls != 2 || out[0].Bookings != 1 {
		t.Fatalf("unexpected top lane: %+v", out[0])
	}
	if out[0].AvgRate != "$1,000" {
		t.Fatalf("expected $1,000, got %q", out[0].AvgRate)
	}
	if out[1].Lane != "Chicago → Denver" || out[1].AvgRate != "$500" {
		t.Fatalf("unexpected second lane: %+v", out[1])
	}
}

func TestTopLanesPrefersAgreedRate(t *testing.T) {
	call := laneCall("Miami", "Tampa", models.OutcomeBooked, floatp(900))
	call.AgreedRate = floatp(1200)
	out := TopLanes([]models.Call{call})
	if out[0].AvgRate != "$1,200" {
		t.Fatalf("expected agreed rate to win, got %q", out[0].AvgRate)
	}
}

func TestTopLanesNoRateObservations(t *testing.T) {
	out := TopLanes([]models.Call{laneCall("Miami", "Tampa", models.OutcomeDroppedCall, nil)})
	if out[0].AvgRate != "$0" {
		t.Fatalf("expected $0, got %q", out[0].AvgRate)
	}
	if out[0].Bookings != 0 {
		t.Fatalf("expected no bookings, got %d", out[0].Bookings)
	}
}

func TestTopLanesSkipsMissingEndpoints(t *testing.T) {
	all := []models.Call{
		{Outcome: models.OutcomeBooked, LaneOrigin: strp("Dallas")},
		{Outcome: models.OutcomeBooked, LaneDestination: strp("Atlanta")},
		{Outcome: models.OutcomeBooked, LaneOrigin: strp(""), LaneDestination: strp("Atlanta")},
	}
	out := TopLanes(all)
	if len(out) != 0 {
		t.Fatalf("expected no lanes, got %+v", out)
	}
}

func TestTopLanesCapsAtFive(t *testing.T) {
	var all []models.Call
	origins := []string{"A", "B", "C", "D", "E", "F", "G"}
	for i, o := range origins {
		// Lane i appears len-i times, so A is busiest and G quietest.
		for n := 0; n < len(origins)-i; n++ {
			all = append(all, laneCall(o, "X", models.OutcomeNegotiationFail, nil))
		}
	}
	out := TopLanes(all)
	if len(out) != 5 {
		t.Fatalf("expected 5 lanes, got %d", len(out))
	}
	if out[0].Lane != "A → X" || out[4].Lane != "E → X" {
		t.Fatalf("unexpected ranking: %+v", out)
	}
}

func TestEquipmentBalanceZeroDemandSide(t *testing.T) {
	out := EquipmentBalance(
		map[string]int{"dry_van": 3},
		map[string]int{"dry_van": 2, "reefer": 2},
	)
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %+v", out)
	}
	if out[0].Type != "Dry Van" || out[0].Demand != 100 || out[0].Supply != 50 {
		t.Fatalf("unexpected dry van row: %+v", out[0])
	}
	if out[1].Type != "Reefer" || out[1].Demand != 0 || out[1].Supply != 50 {
		t.Fatalf("unexpected reefer row: %+v", out[1])
	}
}

func TestEquipmentBalanceZeroTotalGuarded(t *testing.T) {
	out := EquipmentBalance(map[string]int{}, map[string]int{"flatbed": 4})
	if out[0].Demand != 0 || out[0].Supply != 100 {
		t.Fatalf("expected guarded zero demand, got %+v", out[0])
	}
}

func TestEquipmentBalanceEmpty(t *testing.T) {
	out := EquipmentBalance(nil, nil)
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}
}

func TestEquipmentLabelFallback(t *testing.T) {
	if got := equipmentLabel("step_deck"); got != "Step Deck" {
		t.Fatalf("expected Step Deck, got %q", got)
	}
	if got := equipmentLabel("conestoga_xl"); got != "Conestoga Xl" {
		t.Fatalf("expected title-cased fallback, got %q", got)
	}
}

func TestPercentagesSumWithinRoundingBounds(t *testing.T) {
	calls := []models.Call{
		bookedCall(0), bookedCall(0), bookedCall(0),
		bookedCall(1), bookedCall(1),
		bookedCall(2),
		bookedCall(7),
	}
	buckets := NegotiationDepth(calls)
	sum := 0
	for _, b := range buckets {
		sum += b.Pct
	}
	slack := len(buckets) - 1
	if sum < 100-slack || sum > 100+slack {
		t.Fatalf("pct sum %d outside 100±%d: %+v", sum, slack, buckets)
	}
}

type fakeSource struct {
	booked []models.Call
	failed []models.Call
	all    []models.Call
	demand map[string]int
	supply map[string]int
}

func (f fakeSource) BookedCallsSince(context.Context, time.Time) ([]models.Call, error) {
	return f.booked, nil
}
func (f fakeSource) FailedCallsSince(context.Context, time.Time) ([]models.Call, error) {
	return f.failed, nil
}
func (f fakeSource) AllCallsSince(context.Context, time.Time) ([]models.Call, error) {
	return f.all, nil
}
func (f fakeSource) AvailableLoadCountsByEquipment(context.Context) (map[string]int, error) {
	return f.demand, nil
}
func (f fakeSource) RecentCallCountsByEquipment(context.Context, time.Time) (map[string]int, error) {
	return f.supply, nil
}

func TestGetAnalyticsAllEmpty(t *testing.T) {
	svc := AnalyticsService{Source: fakeSource{}}
	snap, err := svc.GetAnalytics(context.Background())
	if err != nil {
		t.Fatalf("expected no error on empty data, got %v", err)
	}
	if snap.NegotiationDepth == nil || len(snap.NegotiationDepth) != 0 {
		t.Fatalf("expected empty negotiation depth, got %#v", snap.NegotiationDepth)
	}
	if snap.CarrierObjections == nil || len(snap.CarrierObjections) != 0 {
		t.Fatalf("expected empty objections, got %#v", snap.CarrierObjections)
	}
	if snap.TopLanes == nil || len(snap.TopLanes) != 0 {
		t.Fatalf("expected empty lanes, got %#v", snap.TopLanes)
	}
	if snap.EquipmentDemandSupply == nil || len(snap.EquipmentDemandSupply) != 0 {
		t.Fatalf("expected empty equipment, got %#v", snap.EquipmentDemandSupply)
	}
}

func TestGetAnalyticsAssemblesAllFour(t *testing.T) {
	svc := AnalyticsService{Source: fakeSource{
		booked: []models.Call{bookedCall(1)},
		failed: []models.Call{{Outcome: models.OutcomeDroppedCall}},
		all:    []models.Call{laneCall("Dallas", "Atlanta", models.OutcomeBooked, floatp(800))},
		demand: map[string]int{"reefer": 1},
		supply: map[string]int{"reefer": 3},
	}}
	snap, err := svc.GetAnalytics(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.NegotiationDepth) != 1 || len(snap.CarrierObjections) != 1 ||
		len(snap.TopLanes) != 1 || len(snap.EquipmentDemandSupply) != 1 {
		t.Fatalf("expected all four sections populated: %+v", snap)
	}
}
