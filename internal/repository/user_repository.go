package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/farmwise/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, username, email, password_hash, full_name, user_type, mobile_no,
       specialization, profile_image, refresh_token_hash, created_at, updated_at`

// Create inserts u and fills in its ID and timestamps.  Username and email
// are normalised to lower case.  A clash on either unique key returns
// ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.ID = uuid.NewString()
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, full_name, user_type, mobile_no, specialization, profile_image, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.UserType, u.MobileNo,
		u.Specialization, u.ProfileImage, u.CreatedAt, u.UpdatedAt)
	if isDuplicateKey(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// ExistsByUsernameOrEmail reports whether either identifier is taken.
func (r *UserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE username=? OR email=?",
		strings.ToLower(strings.TrimSpace(username)), strings.ToLower(strings.TrimSpace(email))).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return n > 0, nil
}

// GetByLogin fetches a user by username or email, whichever matches.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE username=? OR email=? LIMIT 1", login, login)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// ListByType returns every user of the given type, newest first.
func (r *UserRepo) ListByType(ctx context.Context, t model.UserType) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE user_type=? ORDER BY created_at DESC", t)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// SetRefreshHash stores the hash of the current refresh token; nil clears it.
func (r *UserRepo) SetRefreshHash(ctx context.Context, id string, hash *string) error {
	return r.exec(ctx, "UPDATE users SET refresh_token_hash=?, updated_at=? WHERE id=?", hash, time.Now().UTC(), id)
}

// UpdatePassword replaces the bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx, "UPDATE users SET password_hash=?, updated_at=? WHERE id=?", hash, time.Now().UTC(), id)
}

// UpdateAccount changes the display name and email.  A clash on email
// returns ErrConflict.
func (r *UserRepo) UpdateAccount(ctx context.Context, id, fullName, email string) error {
	err := r.exec(ctx, "UPDATE users SET full_name=?, email=?, updated_at=? WHERE id=?",
		fullName, strings.ToLower(strings.TrimSpace(email)), time.Now().UTC(), id)
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// UpdateProfileImage sets the profile image URL.
func (r *UserRepo) UpdateProfileImage(ctx context.Context, id, url string) error {
	return r.exec(ctx, "UPDATE users SET profile_image=?, updated_at=? WHERE id=?", url, time.Now().UTC(), id)
}

func (r *UserRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 for no-op updates too; tell them apart.
		var one int
		if err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", args[len(args)-1]).Scan(&one); errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u                             model.User
		specialty, image, refreshHash sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.UserType, &u.MobileNo,
		&specialty, &image, &refreshHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Specialization = nullable(specialty)
	u.ProfileImage = nullable(image)
	u.RefreshTokenHash = nullable(refreshHash)
	return &u, nil
}
