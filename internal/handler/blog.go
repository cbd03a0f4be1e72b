package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/config"
	"github.com/iliyamo/farmwise/internal/middleware"
	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/response"
	"github.com/iliyamo/farmwise/internal/storage"
)

// BlogStore is the blog persistence.
type BlogStore interface {
	Create(ctx context.Context, b *model.Blog) error
	GetByID(ctx context.Context, id string) (*model.Blog, error)
	List(ctx context.Context) ([]model.Blog, error)
	Update(ctx context.Context, id, title, body string, tags []string, cover *string) (*model.Blog, error)
	Delete(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, blogID, userID string) (bool, error)
	AddComment(ctx context.Context, blogID, authorID, body string) (*model.BlogComment, error)
	ListComments(ctx context.Context, blogID string) ([]model.BlogComment, error)
}

// blogImageFields are the accepted multipart names of the cover image;
// blogImage is what existing clients send.
var blogImageFields = []string{"blogImage", "coverImage"}

type BlogHandler struct {
	Blogs    BlogStore
	Uploads  storage.Uploader
	MaxBytes int64
	Log      *zap.Logger
}

func NewBlogHandler(cfg config.Config, blogs BlogStore, up storage.Uploader, log *zap.Logger) *BlogHandler {
	return &BlogHandler{Blogs: blogs, Uploads: up, MaxBytes: cfg.Upload.MaxUploadSizeBytes, Log: log}
}

// blogReq accepts tags either as a JSON array string or a comma list, the
// way multipart clients send them.
type blogReq struct {
	Title string `form:"title" json:"title"`
	Body  string `form:"body" json:"body"`
	Tags  string `form:"tags" json:"-"`
}

type commentReq struct {
	Comment string `json:"comment" form:"comment"`
}

// bindBlog reads a blog form.  JSON bodies may carry tags as a real array.
func bindBlog(c echo.Context) (blogReq, []string, bool, error) {
	if isJSON(c) {
		var raw struct {
			Title string          `json:"title"`
			Body  string          `json:"body"`
			Tags  json.RawMessage `json:"tags"`
		}
		if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
			return blogReq{}, nil, false, err
		}
		req := blogReq{Title: raw.Title, Body: raw.Body}
		if len(raw.Tags) == 0 || string(raw.Tags) == "null" {
			return req, nil, false, nil
		}
		var s string
		if err := json.Unmarshal(raw.Tags, &s); err == nil {
			return req, parseList(s), true, nil
		}
		return req, parseList(string(raw.Tags)), true, nil
	}
	var req blogReq
	if err := c.Bind(&req); err != nil {
		return blogReq{}, nil, false, err
	}
	params, _ := c.FormParams()
	_, hasTags := params["tags"]
	return req, parseList(req.Tags), hasTags, nil
}

// parseList reads a JSON string array, falling back to a comma separated
// list.  Blank entries are dropped.
func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	var arr []string
	if strings.HasPrefix(s, "[") && json.Unmarshal([]byte(s), &arr) == nil {
		return compact(arr)
	}
	return compact(strings.Split(s, ","))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (h *BlogHandler) Create(c echo.Context) error {
	req, tags, _, err := bindBlog(c)
	if err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		return response.Fail(c, http.StatusBadRequest, "title and body are required")
	}
	cover, err := formFile(c, h.Uploads, storage.FolderBlogs, h.MaxBytes, blogImageFields...)
	if err != nil {
		h.Log.Warn("blog cover upload failed", zap.Error(err))
		return uploadFailed(c, err)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	b := &model.Blog{
		AuthorID:   middleware.UserID(c),
		Title:      strings.TrimSpace(req.Title),
		Body:       req.Body,
		Tags:       tags,
		CoverImage: cover,
	}
	if err := h.Blogs.Create(ctx, b); err != nil {
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusCreated, b, "Blog created successfully")
}

func (h *BlogHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	blogs, err := h.Blogs.List(ctx)
	if err != nil {
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusOK, blogs, "All blogs retrieved")
}

func (h *BlogHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Blogs.GetByID(ctx, c.Param("id"))
	if err != nil {
		return response.Error(c, err, "Blog not found")
	}
	return response.OK(c, http.StatusOK, b, "Blog retrieved successfully")
}

// Update lets the author or an admin edit a blog.  Blank fields keep their
// current value; a new cover replaces the old one.
func (h *BlogHandler) Update(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	id := c.Param("id")
	cur, err := h.Blogs.GetByID(ctx, id)
	if err != nil {
		return response.Error(c, err, "Blog not found")
	}
	if err := ownerOrAdmin(c, cur.AuthorID); err != nil {
		return response.Error(c, err, "only the author can edit this blog")
	}
	req, tags, hasTags, err := bindBlog(c)
	if err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	cover, err := formFile(c, h.Uploads, storage.FolderBlogs, h.MaxBytes, blogImageFields...)
	if err != nil {
		h.Log.Warn("blog cover upload failed", zap.String("blog_id", id), zap.Error(err))
		return uploadFailed(c, err)
	}

	title, body := strings.TrimSpace(req.Title), req.Body
	if title == "" {
		title = cur.Title
	}
	if strings.TrimSpace(body) == "" {
		body = cur.Body
	}
	if !hasTags {
		tags = cur.Tags
	}
	b, err := h.Blogs.Update(ctx, id, title, body, tags, cover)
	if err != nil {
		return response.Error(c, err, "Blog not found")
	}
	return response.OK(c, http.StatusOK, b, "Blog updated successfully")
}

func (h *BlogHandler) Delete(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	id := c.Param("id")
	cur, err := h.Blogs.GetByID(ctx, id)
	if err != nil {
		return response.Error(c, err, "Blog not found")
	}
	if err := ownerOrAdmin(c, cur.AuthorID); err != nil {
		return response.Error(c, err, "only the author can delete this blog")
	}
	if err := h.Blogs.Delete(ctx, id); err != nil {
		return response.Error(c, err, "Blog not found")
	}
	return response.OK(c, http.StatusOK, echo.Map{}, "Blog deleted successfully")
}

// Like toggles the caller in the blog's liker set.
func (h *BlogHandler) Like(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	id := c.Param("id")
	liked, err := h.Blogs.ToggleLike(ctx, id, middleware.UserID(c))
	if err != nil {
		return response.Error(c, err, "Blog not found")
	}
	b, err := h.Blogs.GetByID(ctx, id)
	if err != nil {
		return response.Error(c, err, "Blog not found")
	}
	msg := "Like removed"
	if liked {
		msg = "Blog liked"
	}
	return response.OK(c, http.StatusOK, b, msg)
}

func (h *BlogHandler) AddComment(c echo.Context) error {
	var req commentReq
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Comment) == "" {
		return response.Fail(c, http.StatusBadRequest, "comment is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	id := c.Param("id")
	if _, err := h.Blogs.AddComment(ctx, id, middleware.UserID(c), req.Comment); err != nil {
		return response.Error(c, err, "Blog not found")
	}
	b, err := h.Blogs.GetByID(ctx, id)
	if err != nil {
		return response.Error(c, err, "Blog not found")
	}
	return response.OK(c, http.StatusOK, b, "Comment added successfully")
}

func (h *BlogHandler) Comments(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	comments, err := h.Blogs.ListComments(ctx, c.Param("id"))
	if err != nil {
		return response.Error(c, err, "Blog not found")
	}
	return response.OK(c, http.StatusOK, comments, "Comments retrieved successfully")
}
