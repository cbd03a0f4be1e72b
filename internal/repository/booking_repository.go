package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/farmwise/internal/model"
)

// BookingRepo stores consultation bookings and keeps each expert's ordered
// booking list (expert_bookings) in step with the bookings table.
type BookingRepo struct{ DB *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{DB: db} }

const bookingSelect = `SELECT b.id, b.farmer_id, b.expert_id, b.date, b.time, b.message, b.status, b.created_at,
       f.username, f.full_name, f.profile_image,
       e.id, e.user_id, e.specialization, e.city, e.country, e.verified,
       eu.username, eu.full_name
  FROM bookings b
  LEFT JOIN users f ON f.id = b.farmer_id
  LEFT JOIN experts e ON e.id = b.expert_id
  LEFT JOIN users eu ON eu.id = e.user_id`

// Create inserts a pending booking and appends it to the expert's list in
// one transaction.  Returns ErrNotFound, with nothing written, when the
// expert does not exist.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM experts WHERE id=? FOR UPDATE", b.ExpertID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock expert: %w", err)
	}

	b.ID = uuid.NewString()
	b.Status = model.BookingPending
	b.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (id, farmer_id, expert_id, date, time, message, status, created_at) VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.FarmerID, b.ExpertID, b.Date, b.Time, b.Message, b.Status, b.CreatedAt); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO expert_bookings (expert_id, booking_id) VALUES (?,?)", b.ExpertID, b.ID); err != nil {
		return fmt.Errorf("link booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID returns a booking with farmer and expert populated.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.DB.QueryRowContext(ctx, bookingSelect+" WHERE b.id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// SetStatus overwrites the status and returns the updated booking.  Writing
// the current status again succeeds.
func (r *BookingRepo) SetStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, error) {
	if _, err := r.DB.ExecContext(ctx, "UPDATE bookings SET status=? WHERE id=?", status, id); err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}
	return r.GetByID(ctx, id)
}

// ListAll returns every booking, newest first.
func (r *BookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
	return r.list(ctx, bookingSelect+" ORDER BY b.created_at DESC")
}

// ListByFarmer returns the bookings a farmer made.
func (r *BookingRepo) ListByFarmer(ctx context.Context, farmerID string) ([]model.Booking, error) {
	return r.list(ctx, bookingSelect+" WHERE b.farmer_id=? ORDER BY b.created_at DESC", farmerID)
}

// ListByStatus returns bookings in the given state.
func (r *BookingRepo) ListByStatus(ctx context.Context, status model.BookingStatus) ([]model.Booking, error) {
	return r.list(ctx, bookingSelect+" WHERE b.status=? ORDER BY b.created_at DESC", status)
}

// ListByExpertUser returns the bookings of the expert profile owned by
// userID, in the order they were appended to the profile.
func (r *BookingRepo) ListByExpertUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return r.list(ctx, bookingSelect+`
  JOIN expert_bookings eb ON eb.booking_id = b.id
 WHERE e.user_id=? ORDER BY eb.position`, userID)
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b                                           model.Booking
		date                                        time.Time
		msg                                         sql.NullString
		fName, fFull, fImage                        sql.NullString
		eID, eUser, eCity, eCountry, euName, euFull sql.NullString
		eSpec                                       []byte
		eVerified                                   sql.NullBool
	)
	if err := s.Scan(&b.ID, &b.FarmerID, &b.ExpertID, &date, &b.Time, &msg, &b.Status, &b.CreatedAt,
		&fName, &fFull, &fImage,
		&eID, &eUser, &eSpec, &eCity, &eCountry, &eVerified,
		&euName, &euFull); err != nil {
		return nil, err
	}
	b.Date = date.Format("2006-01-02")
	b.Message = msg.String
	if fName.Valid {
		b.Farmer = &model.UserRef{ID: b.FarmerID, Username: fName.String, FullName: fFull.String, ProfileImage: nullable(fImage)}
	}
	if eID.Valid {
		e := &model.Expert{
			ID:         eID.String,
			UserID:     eUser.String,
			City:       eCity.String,
			Country:    eCountry.String,
			Verified:   eVerified.Bool,
			BookingIDs: []string{},
		}
		if len(eSpec) > 0 {
			_ = json.Unmarshal(eSpec, &e.Specialization)
		}
		e.Specialization = nonNil(e.Specialization)
		if euName.Valid {
			e.User = &model.UserRef{ID: e.UserID, Username: euName.String, FullName: euFull.String}
		}
		b.Expert = e
	}
	return &b, nil
}
