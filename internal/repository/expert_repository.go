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

// ExpertRepo stores expert verification profiles.  The experts.user_id
// column is unique, so each user owns at most one profile.
type ExpertRepo struct{ DB *sql.DB }

func NewExpertRepo(db *sql.DB) *ExpertRepo { return &ExpertRepo{DB: db} }

const expertSelect = `SELECT e.id, e.user_id, e.specialization, e.credential, e.credential_doc, e.id_doc,
       e.experience_years, e.city, e.country, e.bio, e.verified, e.created_at,
       u.username, u.full_name, u.profile_image
  FROM experts e
  JOIN users u ON u.id = e.user_id`

// Create inserts a new unverified profile.  A second profile for the same
// user returns ErrConflict.
func (r *ExpertRepo) Create(ctx context.Context, e *model.Expert) error {
	specialty, err := json.Marshal(nonNil(e.Specialization))
	if err != nil {
		return err
	}
	e.ID = uuid.NewString()
	e.Verified = false
	e.CreatedAt = time.Now().UTC()
	e.BookingIDs = []string{}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO experts (id, user_id, specialization, credential, credential_doc, id_doc, experience_years, city, country, bio, verified, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,0,?)`,
		e.ID, e.UserID, specialty, e.Credential, e.CredentialDoc, e.IDDoc, e.ExperienceYears, e.City, e.Country, e.Bio, e.CreatedAt)
	if isDuplicateKey(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert expert: %w", err)
	}
	return nil
}

// GetByID returns the profile with its user and booking ids populated.
func (r *ExpertRepo) GetByID(ctx context.Context, id string) (*model.Expert, error) {
	return r.getOne(ctx, expertSelect+" WHERE e.id=?", id)
}

// GetByUserID returns the profile owned by userID.
func (r *ExpertRepo) GetByUserID(ctx context.Context, userID string) (*model.Expert, error) {
	return r.getOne(ctx, expertSelect+" WHERE e.user_id=?", userID)
}

// List returns every profile, newest first.
func (r *ExpertRepo) List(ctx context.Context) ([]model.Expert, error) {
	rows, err := r.DB.QueryContext(ctx, expertSelect+" ORDER BY e.created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list experts: %w", err)
	}
	defer rows.Close()
	out := make([]model.Expert, 0)
	for rows.Next() {
		e, err := scanExpert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	links, err := r.allBookingIDs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if ids, ok := links[out[i].ID]; ok {
			out[i].BookingIDs = ids
		}
	}
	return out, nil
}

// SetVerified writes the verified flag and returns the updated profile.
// Setting the value it already has is not an error.
func (r *ExpertRepo) SetVerified(ctx context.Context, id string, verified bool) (*model.Expert, error) {
	if _, err := r.DB.ExecContext(ctx, "UPDATE experts SET verified=? WHERE id=?", verified, id); err != nil {
		return nil, fmt.Errorf("set verified: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *ExpertRepo) getOne(ctx context.Context, q string, arg any) (*model.Expert, error) {
	e, err := scanExpert(r.DB.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expert: %w", err)
	}
	if e.BookingIDs, err = r.bookingIDs(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ExpertRepo) bookingIDs(ctx context.Context, expertID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT booking_id FROM expert_bookings WHERE expert_id=? ORDER BY position", expertID)
	if err != nil {
		return nil, fmt.Errorf("expert bookings: %w", err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ExpertRepo) allBookingIDs(ctx context.Context) (map[string][]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT expert_id, booking_id FROM expert_bookings ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("expert bookings: %w", err)
	}
	defer rows.Close()
	m := make(map[string][]string)
	for rows.Next() {
		var eid, bid string
		if err := rows.Scan(&eid, &bid); err != nil {
			return nil, err
		}
		m[eid] = append(m[eid], bid)
	}
	return m, rows.Err()
}

func scanExpert(s rowScanner) (*model.Expert, error) {
	var (
		e                  model.Expert
		specialty          []byte
		username, fullName string
		image              sql.NullString
	)
	if err := s.Scan(&e.ID, &e.UserID, &specialty, &e.Credential, &e.CredentialDoc, &e.IDDoc,
		&e.ExperienceYears, &e.City, &e.Country, &e.Bio, &e.Verified, &e.CreatedAt,
		&username, &fullName, &image); err != nil {
		return nil, err
	}
	if len(specialty) > 0 {
		if err := json.Unmarshal(specialty, &e.Specialization); err != nil {
			return nil, fmt.Errorf("decode specialization: %w", err)
		}
	}
	e.Specialization = nonNil(e.Specialization)
	e.BookingIDs = []string{}
	e.User = &model.UserRef{ID: e.UserID, Username: username, FullName: fullName, ProfileImage: nullable(image)}
	return &e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
