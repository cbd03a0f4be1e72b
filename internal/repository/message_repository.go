package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/farmwise/internal/model"
)

// MessageRepo persists chat messages.  Rows are only ever inserted; the
// realtime ingestor is the single writer.
type MessageRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewMessageRepo returns a MessageRepo bound to db using the wall clock.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the clock used for created_at and for the duplicate
// window.  Intended for tests.
func (r *MessageRepo) WithClock(now func() time.Time) *MessageRepo {
	r.now = now
	return r
}

// populated projection: message, author, reply target, reply target author.
const messageSelect = `SELECT m.id, m.author_id, m.body, m.thread_id, m.reply_to_id, m.image_ref, m.created_at,
       a.id, a.username, a.profile_image,
       r.id, r.author_id, r.body, r.created_at, ra.id, ra.username
  FROM messages m
  LEFT JOIN users a ON a.id = m.author_id
  LEFT JOIN messages r ON r.id = m.reply_to_id
  LEFT JOIN users ra ON ra.id = r.author_id`

// FindRecentDuplicate returns the newest message by authorID with exactly
// the same body created within [now-window, now).  The body is compared
// byte for byte, never under a case or accent folding collation.  It returns
// nil, nil when there is none.
func (r *MessageRepo) FindRecentDuplicate(ctx context.Context, authorID, body string, window time.Duration) (*model.Message, error) {
	now := r.now()
	const q = `SELECT id, author_id, body, thread_id, reply_to_id, image_ref, created_at
  FROM messages
 WHERE author_id = ? AND body = BINARY ? AND created_at >= ? AND created_at < ?
 ORDER BY created_at DESC LIMIT 1`
	var (
		m                         model.Message
		threadID, replyTo, imgRef sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, authorID, body, now.Add(-window), now).Scan(
		&m.ID, &m.AuthorID, &m.Body, &threadID, &replyTo, &imgRef, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
	m.ThreadID = nullable(threadID)
	m.ReplyToID = nullable(replyTo)
	m.ImageRef = nullable(imgRef)
	return &m, nil
}

// Create inserts a message.  A nil body is rejected with ErrValidation; an
// empty body is stored as is.
func (r *MessageRepo) Create(ctx context.Context, in model.NewMessage) (*model.Message, error) {
	if in.AuthorID == "" || in.Body == nil {
		return nil, ErrValidation
	}
	if in.ThreadID != nil && len(*in.ThreadID) > 64 {
		return nil, ErrValidation
	}
	m := &model.Message{
		ID:        uuid.NewString(),
		AuthorID:  in.AuthorID,
		Body:      *in.Body,
		ThreadID:  in.ThreadID,
		ReplyToID: in.ReplyToID,
		ImageRef:  in.ImageRef,
		CreatedAt: r.now(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, author_id, body, thread_id, reply_to_id, image_ref, created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.AuthorID, m.Body, m.ThreadID, m.ReplyToID, m.ImageRef, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// FindByID loads a message with its author, its reply target and the reply
// target's author.  A reply_to_id that points nowhere yields ReplyTo == nil.
// Returns ErrNotFound when id is unknown.
func (r *MessageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return m, nil
}

// ListByThread returns populated messages in ascending creation order.  A nil
// threadID lists every message; thread tokens are case sensitive.
func (r *MessageRepo) ListByThread(ctx context.Context, threadID *string) ([]model.Message, error) {
	q := messageSelect
	var args []any
	if threadID != nil {
		q += ` WHERE m.thread_id = BINARY ?`
		args = append(args, *threadID)
	}
	q += ` ORDER BY m.created_at ASC, m.id ASC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	out := make([]model.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (*model.Message, error) {
	var (
		m                                   model.Message
		threadID, replyToID, imageRef       sql.NullString
		authorID, authorName, authorImage   sql.NullString
		rID, rAuthorID, rBody, raID, raName sql.NullString
		rCreated                            sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.AuthorID, &m.Body, &threadID, &replyToID, &imageRef, &m.CreatedAt,
		&authorID, &authorName, &authorImage,
		&rID, &rAuthorID, &rBody, &rCreated, &raID, &raName); err != nil {
		return nil, err
	}
	m.ThreadID = nullable(threadID)
	m.ReplyToID = nullable(replyToID)
	m.ImageRef = nullable(imageRef)
	if authorID.Valid {
		m.Author = &model.UserRef{ID: authorID.String, Username: authorName.String, ProfileImage: nullable(authorImage)}
	}
	if rID.Valid {
		reply := &model.Message{ID: rID.String, AuthorID: rAuthorID.String, Body: rBody.String}
		if rCreated.Valid {
			reply.CreatedAt = rCreated.Time
		}
		if raID.Valid {
			reply.Author = &model.UserRef{ID: raID.String, Username: raName.String}
		}
		m.ReplyTo = reply
	}
	return &m, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
