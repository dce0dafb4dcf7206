package app

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"

	"meeting-scheduler/internal/availability"
)

//go:embed schema.sql
var schemaSQL string

type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{DB: pool}
}

// OpenPool connects and pings before returning.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *PGStore) Migrate(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schemaSQL)
	return err
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// isExclusionViolation matches SQLSTATE 23P01 from bookings_no_overlap.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func (s *PGStore) GetHost(ctx context.Context, id string) (Host, error) {
	var h Host
	err := s.DB.QueryRow(ctx,
		`SELECT id, username, email, timezone FROM users WHERE id=$1`, id,
	).Scan(&h.ID, &h.Username, &h.Email, &h.Timezone)
	return h, notFound(err)
}

func (s *PGStore) UpdateHostTimezone(ctx context.Context, id, timezone string) error {
	res, err := s.DB.Exec(ctx, `UPDATE users SET timezone=$1 WHERE id=$2`, timezone, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) InsertAvailabilityRules(ctx context.Context, rules []AvailabilityRule) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	q := `INSERT INTO availability_rules
          (user_id, day_of_week, start_time, end_time, created_at, updated_at)
          VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`
	for i := range rules {
		r := &rules[i]
		if err := tx.QueryRow(ctx, q,
			r.UserID, r.DayOfWeek, r.StartTime, r.EndTime, now, now).Scan(&r.ID); err != nil {
			return fmt.Errorf("insert rule %d: %w", i, err)
		}
		r.CreatedAt, r.UpdatedAt = now, now
	}
	return tx.Commit(ctx)
}

func (s *PGStore) UpdateAvailabilityRule(ctx context.Context, r *AvailabilityRule) error {
	now := time.Now().UTC()
	q := `UPDATE availability_rules
          SET day_of_week=$1, start_time=$2, end_time=$3, updated_at=$4
          WHERE id=$5 AND user_id=$6
          RETURNING created_at`

	err := s.DB.QueryRow(ctx, q,
		r.DayOfWeek, r.StartTime, r.EndTime, now, r.ID, r.UserID,
	).Scan(&r.CreatedAt)
	if err != nil {
		return notFound(err)
	}
	r.UpdatedAt = now
	return nil
}

func (s *PGStore) DeleteAvailabilityRule(ctx context.Context, userID string, ruleID int) error {
	res, err := s.DB.Exec(ctx, `DELETE FROM availability_rules WHERE id=$1 AND user_id=$2`, ruleID, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListAvailabilityRules(ctx context.Context, userID string) ([]AvailabilityRule, error) {
	q := `SELECT id,user_id,day_of_week,start_time,end_time,created_at,updated_at
	      FROM availability_rules WHERE user_id=$1 ORDER BY day_of_week, start_time, id`
	rows, err := s.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AvailabilityRule
	for rows.Next() {
		var r AvailabilityRule
		if err := rows.Scan(&r.ID, &r.UserID, &r.DayOfWeek, &r.StartTime, &r.EndTime,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const eventTypeColumns = `id, user_id, slug, title, description, duration_minutes,
	minimum_notice_hours, maximum_notice_days, max_bookings_per_week, created_at, updated_at`

func scanEventType(row pgx.Row) (EventType, error) {
	var e EventType
	err := row.Scan(&e.ID, &e.UserID, &e.Slug, &e.Title, &e.Description, &e.DurationMinutes,
		&e.MinimumNoticeHours, &e.MaximumNoticeDays, &e.MaxBookingsPerWeek, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *PGStore) CreateEventType(ctx context.Context, e *EventType) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	created, err := scanEventType(s.DB.QueryRow(ctx,
		`INSERT INTO event_types
		 (id, user_id, slug, title, description, duration_minutes,
		  minimum_notice_hours, maximum_notice_days, max_bookings_per_week)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING `+eventTypeColumns,
		e.ID, e.UserID, e.Slug, e.Title, e.Description, e.DurationMinutes,
		e.MinimumNoticeHours, e.MaximumNoticeDays, e.MaxBookingsPerWeek,
	))
	if err != nil {
		return err
	}
	*e = created
	return nil
}

func (s *PGStore) GetEventType(ctx context.Context, id string) (EventType, error) {
	if _, err := uuid.Parse(id); err != nil {
		return EventType{}, ErrNotFound
	}
	e, err := scanEventType(s.DB.QueryRow(ctx,
		`SELECT `+eventTypeColumns+` FROM event_types WHERE id=$1`, id))
	return e, notFound(err)
}

func (s *PGStore) ListEventTypes(ctx context.Context, userID string) ([]EventType, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+eventTypeColumns+` FROM event_types WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventType
	for rows.Next() {
		e, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateEventType(ctx context.Context, e *EventType) error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return ErrNotFound
	}
	updated, err := scanEventType(s.DB.QueryRow(ctx,
		`UPDATE event_types
		 SET slug=$1, title=$2, description=$3, duration_minutes=$4,
		     minimum_notice_hours=$5, maximum_notice_days=$6, max_bookings_per_week=$7,
		     updated_at=now()
		 WHERE id=$8 AND user_id=$9
		 RETURNING `+eventTypeColumns,
		e.Slug, e.Title, e.Description, e.DurationMinutes,
		e.MinimumNoticeHours, e.MaximumNoticeDays, e.MaxBookingsPerWeek, e.ID, e.UserID,
	))
	if err != nil {
		return notFound(err)
	}
	*e = updated
	return nil
}

func (s *PGStore) DeleteEventType(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := s.DB.Exec(ctx, `DELETE FROM event_types WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const bookingColumns = `id, event_type_id, user_id, guest_name, guest_email, guest_notes,
	start_at_utc, end_at_utc, status, google_calendar_event_id, meet_link, created_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.EventTypeID, &b.UserID, &b.GuestName, &b.GuestEmail, &b.GuestNotes,
		&b.StartAtUTC, &b.EndAtUTC, &b.Status, &b.GoogleCalendarEventID, &b.MeetLink, &b.CreatedAt)
	b.StartAtUTC, b.EndAtUTC = b.StartAtUTC.UTC(), b.EndAtUTC.UTC()
	return b, err
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PGStore) ListActiveBookings(ctx context.Context, eventTypeID string, from, to time.Time) ([]Booking, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE event_type_id=$1 AND status <> 'cancelled'
		   AND start_at_utc < $3 AND end_at_utc > $2
		 ORDER BY start_at_utc`, eventTypeID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PGStore) ListBookings(ctx context.Context, userID string, from, to time.Time, filtered bool) ([]Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if filtered {
		rows, err = s.DB.Query(ctx,
			`SELECT `+bookingColumns+`
			 FROM bookings
			 WHERE user_id=$1 AND start_at_utc >= $2 AND start_at_utc < $3
			 ORDER BY start_at_utc`, userID, from.UTC(), to.UTC())
	} else {
		rows, err = s.DB.Query(ctx,
			`SELECT `+bookingColumns+`
			 FROM bookings
			 WHERE user_id=$1
			 ORDER BY start_at_utc`, userID)
	}
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PGStore) GetBooking(ctx context.Context, id string) (Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Booking{}, ErrNotFound
	}
	b, err := scanBooking(s.DB.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	return b, notFound(err)
}

// snapshot locks the event type row so concurrent writers for it serialize,
// then reads what WriteCheck.Verify needs.
func snapshot(ctx context.Context, tx pgx.Tx, eventTypeID string, start, end time.Time, check WriteCheck) (WriteSnapshot, error) {
	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM event_types WHERE id=$1 FOR UPDATE`, eventTypeID).Scan(&locked); err != nil {
		return WriteSnapshot{}, notFound(err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE event_type_id=$1 AND status <> 'cancelled'
		   AND start_at_utc < $3 AND end_at_utc > $2
		   AND ($4 = '' OR id::text <> $4)`, eventTypeID, start.UTC(), end.UTC(), check.ExcludeID)
	if err != nil {
		return WriteSnapshot{}, err
	}
	overlapping, err := collectBookings(rows)
	if err != nil {
		return WriteSnapshot{}, err
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM bookings
		 WHERE event_type_id=$1 AND status <> 'cancelled'
		   AND start_at_utc >= $2 AND start_at_utc < $3
		   AND ($4 = '' OR id::text <> $4)`, eventTypeID, check.WeekFrom.UTC(), check.WeekTo.UTC(), check.ExcludeID,
	).Scan(&count)
	if err != nil {
		return WriteSnapshot{}, err
	}
	return WriteSnapshot{Overlapping: overlapping, WeekCount: count}, nil
}

func (s *PGStore) CreateBooking(ctx context.Context, b *Booking, check WriteCheck) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	snap, err := snapshot(ctx, tx, b.EventTypeID, b.StartAtUTC, b.EndAtUTC, check)
	if err != nil {
		return err
	}
	if check.Verify != nil {
		if err := check.Verify(snap); err != nil {
			return err
		}
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	insertQ := `INSERT INTO bookings
		(id, event_type_id, user_id, guest_name, guest_email, guest_notes, start_at_utc, end_at_utc, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`
	err = tx.QueryRow(ctx, insertQ,
		b.ID, b.EventTypeID, b.UserID, b.GuestName, b.GuestEmail, b.GuestNotes,
		b.StartAtUTC.UTC(), b.EndAtUTC.UTC(), b.Status,
	).Scan(&b.CreatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrSlotUnavailable
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return ErrSlotUnavailable
		}
		return err
	}
	return nil
}

func (s *PGStore) RescheduleBooking(ctx context.Context, id string, start, end time.Time, check WriteCheck) (Booking, error) {
	current, err := s.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Booking{}, err
	}
	defer tx.Rollback(ctx)

	check.ExcludeID = id
	snap, err := snapshot(ctx, tx, current.EventTypeID, start, end, check)
	if err != nil {
		return Booking{}, err
	}
	if check.Verify != nil {
		if err := check.Verify(snap); err != nil {
			return Booking{}, err
		}
	}

	updated, err := scanBooking(tx.QueryRow(ctx,
		`UPDATE bookings SET start_at_utc=$1, end_at_utc=$2
		 WHERE id=$3 AND status <> 'cancelled'
		 RETURNING `+bookingColumns, start.UTC(), end.UTC(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, ErrAlreadyCancelled
		}
		if isExclusionViolation(err) {
			return Booking{}, ErrSlotUnavailable
		}
		return Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return Booking{}, ErrSlotUnavailable
		}
		return Booking{}, err
	}
	return updated, nil
}

func (s *PGStore) SetBookingStatus(ctx context.Context, id string, status availability.Status) (Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Booking{}, ErrNotFound
	}
	b, err := scanBooking(s.DB.QueryRow(ctx,
		`UPDATE bookings SET status=$1 WHERE id=$2 AND status <> 'cancelled'
		 RETURNING `+bookingColumns, status, id))
	if err == nil {
		return b, nil
	}
	if isExclusionViolation(err) {
		return Booking{}, ErrSlotUnavailable
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, err
	}
	// No row changed: either it does not exist or a concurrent cancel won.
	if _, err := s.GetBooking(ctx, id); err != nil {
		return Booking{}, err
	}
	return Booking{}, ErrAlreadyCancelled
}

func (s *PGStore) SetCalendarEvent(ctx context.Context, bookingID, eventID, meetLink string) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE bookings SET google_calendar_event_id=$1, meet_link=$2 WHERE id=$3`,
		eventID, meetLink, bookingID)
	return err
}

func (s *PGStore) GetCalendarToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT token FROM calendar_tokens WHERE user_id=$1`, userID).Scan(&raw)
	if err != nil {
		return nil, notFound(err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode calendar token: %w", err)
	}
	return &tok, nil
}

func (s *PGStore) SaveCalendarToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx,
		`INSERT INTO calendar_tokens (user_id, token, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET token=EXCLUDED.token, updated_at=now()`,
		userID, raw)
	return err
}
