package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carrierdesk/backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// WithTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; any error (or panic unwind) rolls the whole unit back.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const callColumns = `call_id, outcome, negotiation_rounds, equipment_type, lane_origin, lane_destination, final_rate, sentiment, created_at`

func scanCall(rows pgx.Rows) (models.Call, error) {
	var c models.Call
	err := rows.Scan(&c.CallID, &c.Outcome, &c.NegotiationRounds, &c.EquipmentType, &c.LaneOrigin, &c.LaneDestination, &c.FinalRate, &c.Sentiment, &c.CreatedAt)
	return c, err
}

// BookedCallsSince returns calls with outcome 'booked' created at or after the cutoff.
func (s *Store) BookedCallsSince(ctx context.Context, since time.Time) ([]models.Call, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+callColumns+` FROM calls WHERE outcome = $1 AND created_at >= $2`, models.OutcomeBooked, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FailedCallsSince returns negotiation_failed and dropped_call outcomes.
// no_loads_available is deliberately not included here; the analytics layer
// pulls it from AllCallsSince because storage never classifies it as failed.
func (s *Store) FailedCallsSince(ctx context.Context, since time.Time) ([]models.Call, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+callColumns+` FROM calls WHERE outcome = ANY($1) AND created_at >= $2`,
		[]string{models.OutcomeNegotiationFail, models.OutcomeDroppedCall}, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllCallsSince returns every call in the window, with the agreed rate from
// booked_loads joined in where the call produced a booking.
func (s *Store) AllCallsSince(ctx context.Context, since time.Time) ([]models.Call, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT c.call_id, c.outcome, c.negotiation_rounds, c.equipment_type, c.lane_origin, c.lane_destination, c.final_rate, c.sentiment, c.created_at, bl.agreed_rate
		FROM calls c
		LEFT JOIN booked_loads bl ON c.call_id = bl.call_id
		WHERE c.created_at >= $1
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Call
	for rows.Next() {
		var c models.Call
		if err := rows.Scan(&c.CallID, &c.Outcome, &c.NegotiationRounds, &c.EquipmentType, &c.LaneOrigin, &c.LaneDestination, &c.FinalRate, &c.Sentiment, &c.CreatedAt, &c.AgreedRate); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AvailableLoadCountsByEquipment counts currently available loads per equipment type.
func (s *Store) AvailableLoadCountsByEquipment(ctx context.Context) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT equipment_type, COUNT(*) FROM loads WHERE status = $1 GROUP BY equipment_type`, models.LoadAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var eq string
		var cnt int
		if err := rows.Scan(&eq, &cnt); err != nil {
			return nil, err
		}
		out[eq] = cnt
	}
	return out, rows.Err()
}

// RecentCallCountsByEquipment counts window calls per equipment type,
// skipping calls with no equipment recorded.
func (s *Store) RecentCallCountsByEquipment(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT equipment_type, COUNT(*) FROM calls WHERE equipment_type IS NOT NULL AND created_at >= $1 GROUP BY equipment_type`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var eq string
		var cnt int
		if err := rows.Scan(&eq, &cnt); err != nil {
			return nil, err
		}
		out[eq] = cnt
	}
	return out, rows.Err()
}

const loadColumns = `load_id, equipment_type, status, origin, destination, loadboard_rate, booked_at`

func (s *Store) GetLoad(ctx context.Context, loadID string) (*models.Load, error) {
	var l models.Load
	err := s.Pool.QueryRow(ctx, `SELECT `+loadColumns+` FROM loads WHERE load_id = $1`, loadID).
		Scan(&l.LoadID, &l.EquipmentType, &l.Status, &l.Origin, &l.Destination, &l.LoadboardRate, &l.BookedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLoads returns loads filtered by status, equipment type, and a free-text
// lane search, newest bookings last in insertion order by load_id.
func (s *Store) ListLoads(ctx context.Context, status, equipmentType, q string, limit, offset int) ([]models.Load, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + loadColumns + ` FROM loads`
	var args []any
	var wheres []string
	if status != "" {
		args = append(args, status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if equipmentType != "" {
		args = append(args, equipmentType)
		wheres = append(wheres, fmt.Sprintf("equipment_type = $%d", len(args)))
	}
	if q != "" {
		args = append(args, "%"+q+"%")
		wheres = append(wheres, fmt.Sprintf("(origin ILIKE $%d OR destination ILIKE $%d OR load_id ILIKE $%d)", len(args), len(args), len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY load_id ASC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Load
	for rows.Next() {
		var l models.Load
		if err := rows.Scan(&l.LoadID, &l.EquipmentType, &l.Status, &l.Origin, &l.Destination, &l.LoadboardRate, &l.BookedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) InsertLoads(ctx context.Context, loads []models.Load) (int64, error) {
	rows := make([][]any, 0, len(loads))
	for _, l := range loads {
		rows = append(rows, []any{l.LoadID, l.EquipmentType, l.Status, l.Origin, l.Destination, l.LoadboardRate, l.BookedAt})
	}
	copyCount, err := s.Pool.CopyFrom(ctx, pgx.Identifier{"loads"}, []string{"load_id", "equipment_type", "status", "origin", "destination", "loadboard_rate", "booked_at"}, pgx.CopyFromRows(rows))
	return copyCount, err
}

// GetLoadForUpdate reads a load under a row lock inside tx. Returns nil when
// no such load exists. The lock is what serializes concurrent booking
// attempts for the same load.
func (s *Store) GetLoadForUpdate(ctx context.Context, tx pgx.Tx, loadID string) (*models.Load, error) {
	var l models.Load
	err := tx.QueryRow(ctx, `SELECT `+loadColumns+` FROM loads WHERE load_id = $1 FOR UPDATE`, loadID).
		Scan(&l.LoadID, &l.EquipmentType, &l.Status, &l.Origin, &l.Destination, &l.LoadboardRate, &l.BookedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) InsertBookedLoad(ctx context.Context, tx pgx.Tx, b models.BookedLoad) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO booked_loads (id, load_id, mc_number, carrier_name, agreed_rate, agreed_pickup_datetime, offer_id, call_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, b.ID, b.LoadID, b.MCNumber, b.CarrierName, b.AgreedRate, b.AgreedPickupDatetime, b.OfferID, b.CallID, b.CreatedAt)
	return err
}

func (s *Store) MarkLoadBooked(ctx context.Context, tx pgx.Tx, loadID string, bookedAt time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE loads SET status = $1, booked_at = $2 WHERE load_id = $3`, models.LoadBooked, bookedAt, loadID)
	return err
}

const enrichedBookedLoadQuery = `
	SELECT bl.id, bl.load_id, bl.mc_number, bl.carrier_name, bl.agreed_rate, bl.agreed_pickup_datetime, bl.offer_id, bl.call_id, bl.created_at,
		l.origin, l.destination, l.equipment_type, l.loadboard_rate,
		c.negotiation_rounds, c.sentiment
	FROM booked_loads bl
	LEFT JOIN loads l ON bl.load_id = l.load_id
	LEFT JOIN calls c ON bl.call_id = c.call_id`

func scanEnrichedBookedLoad(row pgx.Row) (models.EnrichedBookedLoad, error) {
	var b models.EnrichedBookedLoad
	err := row.Scan(
		&b.ID, &b.LoadID, &b.MCNumber, &b.CarrierName, &b.AgreedRate, &b.AgreedPickupDatetime, &b.OfferID, &b.CallID, &b.CreatedAt,
		&b.LaneOrigin, &b.LaneDestination, &b.EquipmentType, &b.LoadboardRate,
		&b.NegotiationRounds, &b.Sentiment,
	)
	return b, err
}

// GetBookedLoad returns the enriched booking for a load, or nil when the load
// has never been booked.
func (s *Store) GetBookedLoad(ctx context.Context, loadID string) (*models.EnrichedBookedLoad, error) {
	row := s.Pool.QueryRow(ctx, enrichedBookedLoadQuery+` WHERE bl.load_id = $1`, loadID)
	b, err := scanEnrichedBookedLoad(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBookedLoads returns enriched bookings newest first.
func (s *Store) ListBookedLoads(ctx context.Context, offset, limit int) ([]models.EnrichedBookedLoad, error) {
	rows, err := s.Pool.Query(ctx, enrichedBookedLoadQuery+` ORDER BY bl.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EnrichedBookedLoad
	for rows.Next() {
		b, err := scanEnrichedBookedLoad(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
