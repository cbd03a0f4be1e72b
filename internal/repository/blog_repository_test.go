package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/farmwise/internal/model"
)

var blogCols = []string{
	"b.id", "b.author_id", "b.title", "b.body", "b.tags", "b.cover_image", "b.created_at", "b.updated_at",
	"u.username", "u.full_name", "u.profile_image",
}

func TestBlogRepo_ToggleLike(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBlogRepo(db)

	// first call: not liked yet, so insert
	mock.ExpectQuery(`SELECT 1 FROM blogs WHERE id=\?`).WithArgs("b1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM blog_likes`).WithArgs("b1", "u1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO blog_likes`).WithArgs("b1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	// second call: removes it
	mock.ExpectQuery(`SELECT 1 FROM blogs WHERE id=\?`).WithArgs("b1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM blog_likes`).WithArgs("b1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))

	liked, err := repo.ToggleLike(context.Background(), "b1", "u1")
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = repo.ToggleLike(context.Background(), "b1", "u1")
	require.NoError(t, err)
	assert.False(t, liked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBlogRepo_AddComment_MissingBlog(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBlogRepo(db)

	mock.ExpectQuery(`SELECT 1 FROM blogs`).WillReturnRows(sqlmock.NewRows([]string{"1"}))

	_, err := repo.AddComment(context.Background(), "gone", "u1", "nice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlogRepo_GetByID_Populated(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBlogRepo(db)

	mock.ExpectQuery(`FROM blogs b`).WithArgs("b1").WillReturnRows(sqlmock.NewRows(blogCols).
		AddRow("b1", "u1", "Drip irrigation", "body", []byte(`["water","kharif"]`), nil, fixedNow, fixedNow, "ravi", "Ravi K", nil))
	mock.ExpectQuery(`FROM blog_likes WHERE blog_id IN \(\?\)`).WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"blog_id", "user_id"}).AddRow("b1", "u2").AddRow("b1", "u3"))
	mock.ExpectQuery(`(?s)FROM blog_comments c.*WHERE c.blog_id IN \(\?\) ORDER BY c.id`).WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"blog_id", "author_id", "body", "created_at", "username", "profile_image"}).
			AddRow("b1", "u2", "first", fixedNow, "asha", nil).
			AddRow("b1", "u3", "second", fixedNow, nil, nil))

	b, err := repo.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"water", "kharif"}, b.Tags)
	assert.Equal(t, []string{"u2", "u3"}, b.LikerIDs)
	require.Len(t, b.Comments, 2)
	assert.Equal(t, "first", b.Comments[0].Body)
	assert.Equal(t, "asha", b.Comments[0].Author.Username)
	assert.Nil(t, b.Comments[1].Author)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBlogRepo_Delete_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBlogRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM blogs WHERE id=\?`).WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Delete(context.Background(), "b1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBlogRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBlogRepo(db)

	mock.ExpectExec(`INSERT INTO blogs`).
		WithArgs(sqlmock.AnyArg(), "u1", "t", "b", []byte(`[]`), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	b := &model.Blog{AuthorID: "u1", Title: "t", Body: "b"}
	require.NoError(t, repo.Create(context.Background(), b))
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, []string{}, b.LikerIDs)
}
