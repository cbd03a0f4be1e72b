package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/farmwise/internal/model"
)

// BlogRepo stores blogs together with their likes (a set per blog) and
// their append-only comment lists.
type BlogRepo struct{ DB *sql.DB }

func NewBlogRepo(db *sql.DB) *BlogRepo { return &BlogRepo{DB: db} }

const blogSelect = `SELECT b.id, b.author_id, b.title, b.body, b.tags, b.cover_image, b.created_at, b.updated_at,
       u.username, u.full_name, u.profile_image
  FROM blogs b
  LEFT JOIN users u ON u.id = b.author_id`

// Create inserts b and fills in its ID and timestamps.
func (r *BlogRepo) Create(ctx context.Context, b *model.Blog) error {
	tags, err := json.Marshal(nonNil(b.Tags))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt, b.UpdatedAt = now, now
	b.LikerIDs, b.Comments = []string{}, []model.BlogComment{}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO blogs (id, author_id, title, body, tags, cover_image, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.AuthorID, b.Title, b.Body, tags, b.CoverImage, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert blog: %w", err)
	}
	return nil
}

// GetByID returns a blog with author, likers and comments populated.
func (r *BlogRepo) GetByID(ctx context.Context, id string) (*model.Blog, error) {
	b, err := scanBlog(r.DB.QueryRowContext(ctx, blogSelect+" WHERE b.id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blog: %w", err)
	}
	if err := r.attach(ctx, []*model.Blog{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// List returns every blog, newest first, fully populated.
func (r *BlogRepo) List(ctx context.Context) ([]model.Blog, error) {
	rows, err := r.DB.QueryContext(ctx, blogSelect+" ORDER BY b.created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	defer rows.Close()
	var ptrs []*model.Blog
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attach(ctx, ptrs); err != nil {
		return nil, err
	}
	out := make([]model.Blog, 0, len(ptrs))
	for _, b := range ptrs {
		out = append(out, *b)
	}
	return out, nil
}

// Update rewrites the editable fields of a blog.  A nil cover keeps the
// current one.
func (r *BlogRepo) Update(ctx context.Context, id, title, body string, tags []string, cover *string) (*model.Blog, error) {
	raw, err := json.Marshal(nonNil(tags))
	if err != nil {
		return nil, err
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE blogs SET title=?, body=?, tags=?, cover_image=COALESCE(?, cover_image), updated_at=? WHERE id=?",
		title, body, raw, cover, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update blog: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a blog with its likes and comments.
func (r *BlogRepo) Delete(ctx context.Context, id string) error {
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
	res, err := tx.ExecContext(ctx, "DELETE FROM blogs WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete blog: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM blog_likes WHERE blog_id=?", id); err != nil {
		return fmt.Errorf("delete likes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM blog_comments WHERE blog_id=?", id); err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ToggleLike adds userID to the blog's likers, or removes it when already
// present.  It reports whether the user now likes the blog.
func (r *BlogRepo) ToggleLike(ctx context.Context, blogID, userID string) (bool, error) {
	if err := r.exists(ctx, blogID); err != nil {
		return false, err
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM blog_likes WHERE blog_id=? AND user_id=?", blogID, userID)
	if err != nil {
		return false, fmt.Errorf("unlike: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	_, err = r.DB.ExecContext(ctx, "INSERT INTO blog_likes (blog_id, user_id) VALUES (?,?)", blogID, userID)
	if err != nil && !isDuplicateKey(err) {
		return false, fmt.Errorf("like: %w", err)
	}
	return true, nil
}

// AddComment appends a comment.  Returns ErrNotFound when the blog is gone.
func (r *BlogRepo) AddComment(ctx context.Context, blogID, authorID, body string) (*model.BlogComment, error) {
	if err := r.exists(ctx, blogID); err != nil {
		return nil, err
	}
	c := &model.BlogComment{AuthorID: authorID, Body: body, CreatedAt: time.Now().UTC()}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO blog_comments (blog_id, author_id, body, created_at) VALUES (?,?,?,?)",
		blogID, authorID, body, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

// ListComments returns a blog's comments in insertion order.
func (r *BlogRepo) ListComments(ctx context.Context, blogID string) ([]model.BlogComment, error) {
	if err := r.exists(ctx, blogID); err != nil {
		return nil, err
	}
	byBlog, err := r.comments(ctx, []string{blogID})
	if err != nil {
		return nil, err
	}
	return nonNilComments(byBlog[blogID]), nil
}

func (r *BlogRepo) exists(ctx context.Context, id string) error {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM blogs WHERE id=?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// attach loads likers and comments for blogs with two IN queries.
func (r *BlogRepo) attach(ctx context.Context, blogs []*model.Blog) error {
	if len(blogs) == 0 {
		return nil
	}
	ids := make([]string, len(blogs))
	for i, b := range blogs {
		ids[i] = b.ID
	}
	likes, err := r.likers(ctx, ids)
	if err != nil {
		return err
	}
	comments, err := r.comments(ctx, ids)
	if err != nil {
		return err
	}
	for _, b := range blogs {
		b.LikerIDs = nonNil(likes[b.ID])
		b.Comments = nonNilComments(comments[b.ID])
	}
	return nil
}

func (r *BlogRepo) likers(ctx context.Context, ids []string) (map[string][]string, error) {
	q, args := inClause("SELECT blog_id, user_id FROM blog_likes WHERE blog_id IN ", ids)
	rows, err := r.DB.QueryContext(ctx, q+" ORDER BY blog_id, user_id", args...)
	if err != nil {
		return nil, fmt.Errorf("list likes: %w", err)
	}
	defer rows.Close()
	m := make(map[string][]string)
	for rows.Next() {
		var bid, uid string
		if err := rows.Scan(&bid, &uid); err != nil {
			return nil, err
		}
		m[bid] = append(m[bid], uid)
	}
	return m, rows.Err()
}

func (r *BlogRepo) comments(ctx context.Context, ids []string) (map[string][]model.BlogComment, error) {
	q, args := inClause(`SELECT c.blog_id, c.author_id, c.body, c.created_at, u.username, u.profile_image
  FROM blog_comments c
  LEFT JOIN users u ON u.id = c.author_id
 WHERE c.blog_id IN `, ids)
	rows, err := r.DB.QueryContext(ctx, q+" ORDER BY c.id", args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	m := make(map[string][]model.BlogComment)
	for rows.Next() {
		var (
			bid         string
			c           model.BlogComment
			name, image sql.NullString
		)
		if err := rows.Scan(&bid, &c.AuthorID, &c.Body, &c.CreatedAt, &name, &image); err != nil {
			return nil, err
		}
		if name.Valid {
			c.Author = &model.UserRef{ID: c.AuthorID, Username: name.String, ProfileImage: nullable(image)}
		}
		m[bid] = append(m[bid], c)
	}
	return m, rows.Err()
}

func inClause(prefix string, ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return prefix + "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}

func scanBlog(s rowScanner) (*model.Blog, error) {
	var (
		b                 model.Blog
		tags              []byte
		cover             sql.NullString
		name, full, image sql.NullString
	)
	if err := s.Scan(&b.ID, &b.AuthorID, &b.Title, &b.Body, &tags, &cover, &b.CreatedAt, &b.UpdatedAt,
		&name, &full, &image); err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &b.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	b.Tags = nonNil(b.Tags)
	b.CoverImage = nullable(cover)
	b.LikerIDs, b.Comments = []string{}, []model.BlogComment{}
	if name.Valid {
		b.Author = &model.UserRef{ID: b.AuthorID, Username: name.String, FullName: full.String, ProfileImage: nullable(image)}
	}
	return &b, nil
}

func nonNilComments(c []model.BlogComment) []model.BlogComment {
	if c == nil {
		return []model.BlogComment{}
	}
	return c
}
