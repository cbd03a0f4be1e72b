package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/farmwise/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func str(s string) *string { return &s }

var messageCols = []string{
	"m.id", "m.author_id", "m.body", "m.thread_id", "m.reply_to_id", "m.image_ref", "m.created_at",
	"a.id", "a.username", "a.profile_image",
	"r.id", "r.author_id", "r.body", "r.created_at", "ra.id", "ra.username",
}

func TestMessageRepo_FindRecentDuplicate_UsesHalfOpenWindow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db).WithClock(func() time.Time { return fixedNow })

	mock.ExpectQuery(`FROM messages\s+WHERE author_id = \? AND body = BINARY \? AND created_at >= \? AND created_at < \?`).
		WithArgs("u1", "hello", fixedNow.Add(-2*time.Second), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "body", "thread_id", "reply_to_id", "image_ref", "created_at"}).
			AddRow("m1", "u1", "hello", "t1", nil, nil, fixedNow.Add(-time.Second)))

	m, err := repo.FindRecentDuplicate(context.Background(), "u1", "hello", 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "t1", *m.ThreadID)
	assert.Nil(t, m.ReplyToID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_FindRecentDuplicate_None(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db).WithClock(func() time.Time { return fixedNow })

	mock.ExpectQuery(`FROM messages`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	m, err := repo.FindRecentDuplicate(context.Background(), "u1", "hello", 2*time.Second)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMessageRepo_FindRecentDuplicate_CaseSensitive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db).WithClock(func() time.Time { return fixedNow })

	// "hello" is stored; a binary comparison must not match "Hello".
	mock.ExpectQuery(`body = BINARY \?`).
		WithArgs("u1", "Hello", fixedNow.Add(-2*time.Second), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "body", "thread_id", "reply_to_id", "image_ref", "created_at"}))

	m, err := repo.FindRecentDuplicate(context.Background(), "u1", "Hello", 2*time.Second)
	require.NoError(t, err)
	assert.Nil(t, m)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Create_RejectsMissingBody(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	_, err := repo.Create(context.Background(), model.NewMessage{AuthorID: "u1"})
	assert.ErrorIs(t, err, ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Create_AcceptsEmptyBody(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db).WithClock(func() time.Time { return fixedNow })

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), "u1", "", "t1", nil, nil, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m, err := repo.Create(context.Background(), model.NewMessage{AuthorID: "u1", Body: str(""), ThreadID: str("t1")})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "", m.Body)
	assert.Equal(t, fixedNow, m.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_FindByID_BrokenReplyIsNull(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`(?s)LEFT JOIN messages r ON r.id = m.reply_to_id .* WHERE m.id = \?`).
		WithArgs("m2").
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("m2", "u1", "hi", nil, "gone", nil, fixedNow, "u1", "ravi", nil, nil, nil, nil, nil, nil, nil))

	m, err := repo.FindByID(context.Background(), "m2")
	require.NoError(t, err)
	require.NotNil(t, m.Author)
	assert.Equal(t, "ravi", m.Author.Username)
	assert.Equal(t, "gone", *m.ReplyToID)
	assert.Nil(t, m.ReplyTo)
}

func TestMessageRepo_FindByID_PopulatesReply(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`FROM messages m`).
		WithArgs("m2").
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("m2", "u1", "yes", nil, "m1", nil, fixedNow, "u1", "ravi", "http://img",
				"m1", "u2", "question", fixedNow.Add(-time.Minute), "u2", "asha"))

	m, err := repo.FindByID(context.Background(), "m2")
	require.NoError(t, err)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "question", m.ReplyTo.Body)
	require.NotNil(t, m.ReplyTo.Author)
	assert.Equal(t, "asha", m.ReplyTo.Author.Username)
	assert.Equal(t, "http://img", *m.Author.ProfileImage)
}

func TestMessageRepo_FindByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`FROM messages m`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepo_ListByThread(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`WHERE m.thread_id = BINARY \? ORDER BY m.created_at ASC`).
		WithArgs("farm-1").
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("a", "u1", "first", "farm-1", nil, nil, fixedNow, "u1", "ravi", nil, nil, nil, nil, nil, nil, nil).
			AddRow("b", "u2", "second", "farm-1", nil, nil, fixedNow.Add(time.Second), "u2", "asha", nil, nil, nil, nil, nil, nil, nil))

	got, err := repo.ListByThread(context.Background(), str("farm-1"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestMessageRepo_ListByThread_AllWhenNil(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`LEFT JOIN users ra ON ra.id = r.author_id ORDER BY`).
		WillReturnRows(sqlmock.NewRows(messageCols))

	got, err := repo.ListByThread(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestMessageRepo_Create_WrapsDriverError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)
	boom := errors.New("boom")

	mock.ExpectExec(`INSERT INTO messages`).WillReturnError(boom)

	_, err := repo.Create(context.Background(), model.NewMessage{AuthorID: "u1", Body: str("x")})
	assert.ErrorIs(t, err, boom)
}
