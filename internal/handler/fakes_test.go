package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/config"
	"github.com/iliyamo/farmwise/internal/middleware"
	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/queue"
	"github.com/iliyamo/farmwise/internal/realtime"
	"github.com/iliyamo/farmwise/internal/repository"
)

func testConfig() config.Config {
	return config.Config{
		AccessSecret:   "access-secret",
		RefreshSecret:  "refresh-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 1,
		BcryptCost:     4,
		AdminSignupKey: "let-me-in",
		Upload:         config.UploadConfig{MaxUploadSizeBytes: 1 << 20},
	}
}

// envelope mirrors response.Envelope with Data left raw.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func jsonCtx(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

// multipartCtx builds a multipart request; files maps field name to content.
func multipartCtx(t *testing.T, method, target string, fields, files map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for k, v := range files {
		fw, err := w.CreateFormFile(k, k+".png")
		require.NoError(t, err)
		_, err = io.WriteString(fw, v)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func as(c echo.Context, userID string, role model.UserType) {
	c.Set(middleware.CtxUserID, userID)
	c.Set(middleware.CtxRole, string(role))
}

func withParam(c echo.Context, name, value string) {
	c.SetParamNames(name)
	c.SetParamValues(value)
}

// ----- users -----

type fakeUsers struct {
	mu   sync.Mutex
	next int
	byID map[string]*model.User
}

func newFakeUsers(us ...*model.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*model.User{}}
	for _, u := range us {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Username = strings.ToLower(u.Username)
	u.Email = strings.ToLower(u.Email)
	for _, o := range f.byID {
		if o.Username == u.Username || o.Email == u.Email {
			return repository.ErrConflict
		}
	}
	f.next++
	u.ID = fmt.Sprintf("u-%d", f.next)
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byID {
		if o.Username == strings.ToLower(username) || o.Email == strings.ToLower(email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) GetByLogin(_ context.Context, login string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	login = strings.ToLower(login)
	for _, o := range f.byID {
		if o.Username == login || o.Email == login {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) ListByType(_ context.Context, t model.UserType) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, u := range f.byID {
		if u.UserType == t {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) update(id string, fn func(u *model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func (f *fakeUsers) SetRefreshHash(_ context.Context, id string, hash *string) error {
	return f.update(id, func(u *model.User) { u.RefreshTokenHash = hash })
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, hash string) error {
	return f.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (f *fakeUsers) UpdateAccount(_ context.Context, id, fullName, email string) error {
	return f.update(id, func(u *model.User) { u.FullName, u.Email = fullName, email })
}

func (f *fakeUsers) UpdateProfileImage(_ context.Context, id, url string) error {
	return f.update(id, func(u *model.User) { u.ProfileImage = &url })
}

// ----- experts -----

type fakeExperts struct {
	mu   sync.Mutex
	byID map[string]*model.Expert
}

func newFakeExperts(es ...*model.Expert) *fakeExperts {
	f := &fakeExperts{byID: map[string]*model.Expert{}}
	for _, e := range es {
		f.byID[e.ID] = e
	}
	return f
}

func (f *fakeExperts) Create(_ context.Context, e *model.Expert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byID {
		if o.UserID == e.UserID {
			return repository.ErrConflict
		}
	}
	e.ID = "e-" + e.UserID
	e.BookingIDs = []string{}
	cp := *e
	f.byID[e.ID] = &cp
	return nil
}

func (f *fakeExperts) GetByID(_ context.Context, id string) (*model.Expert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExperts) GetByUserID(_ context.Context, userID string) (*model.Expert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.byID {
		if e.UserID == userID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeExperts) List(context.Context) ([]model.Expert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Expert{}
	for _, e := range f.byID {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeExperts) SetVerified(ctx context.Context, id string, v bool) (*model.Expert, error) {
	f.mu.Lock()
	e, ok := f.byID[id]
	if ok {
		e.Verified = v
	}
	f.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f.GetByID(ctx, id)
}

// ----- bookings -----

// fakeBookings knows experts by id -> owning user id.
type fakeBookings struct {
	mu      sync.Mutex
	experts map[string]string
	byID    map[string]*model.Booking
	order   []string
}

func newFakeBookings(experts map[string]string) *fakeBookings {
	return &fakeBookings{experts: experts, byID: map[string]*model.Booking{}}
}

func (f *fakeBookings) Create(_ context.Context, b *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.experts[b.ExpertID]; !ok {
		return repository.ErrNotFound
	}
	b.ID = fmt.Sprintf("b-%d", len(f.order)+1)
	b.Status = model.BookingPending
	cp := *b
	f.byID[b.ID] = &cp
	f.order = append(f.order, b.ID)
	return nil
}

func (f *fakeBookings) GetByID(_ context.Context, id string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	cp.Expert = &model.Expert{ID: b.ExpertID, UserID: f.experts[b.ExpertID]}
	return &cp, nil
}

func (f *fakeBookings) SetStatus(ctx context.Context, id string, s model.BookingStatus) (*model.Booking, error) {
	f.mu.Lock()
	b, ok := f.byID[id]
	if ok {
		b.Status = s
	}
	f.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f.GetByID(ctx, id)
}

func (f *fakeBookings) filter(keep func(*model.Booking) bool) []model.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Booking{}
	for _, id := range f.order {
		if b := f.byID[id]; keep(b) {
			out = append(out, *b)
		}
	}
	return out
}

func (f *fakeBookings) ListAll(context.Context) ([]model.Booking, error) {
	return f.filter(func(*model.Booking) bool { return true }), nil
}

func (f *fakeBookings) ListByFarmer(_ context.Context, farmerID string) ([]model.Booking, error) {
	return f.filter(func(b *model.Booking) bool { return b.FarmerID == farmerID }), nil
}

func (f *fakeBookings) ListByStatus(_ context.Context, s model.BookingStatus) ([]model.Booking, error) {
	return f.filter(func(b *model.Booking) bool { return b.Status == s }), nil
}

func (f *fakeBookings) ListByExpertUser(_ context.Context, userID string) ([]model.Booking, error) {
	return f.filter(func(b *model.Booking) bool { return f.experts[b.ExpertID] == userID }), nil
}

// ----- blogs -----

// fakeBlogs implements the BlogStore calls the handlers under test make.
type fakeBlogs struct {
	BlogStore
	mu     sync.Mutex
	byID   map[string]*model.Blog
	likes  map[string]map[string]bool
	update []string
}

func newFakeBlogs(bs ...*model.Blog) *fakeBlogs {
	f := &fakeBlogs{byID: map[string]*model.Blog{}, likes: map[string]map[string]bool{}}
	for _, b := range bs {
		f.byID[b.ID] = b
	}
	return f
}

func (f *fakeBlogs) Create(_ context.Context, b *model.Blog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = fmt.Sprintf("blog-%d", len(f.byID)+1)
	cp := *b
	f.byID[b.ID] = &cp
	return nil
}

func (f *fakeBlogs) GetByID(_ context.Context, id string) (*model.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	cp.LikerIDs = []string{}
	for u := range f.likes[id] {
		cp.LikerIDs = append(cp.LikerIDs, u)
	}
	return &cp, nil
}

func (f *fakeBlogs) Update(ctx context.Context, id, title, body string, tags []string, cover *string) (*model.Blog, error) {
	f.mu.Lock()
	b, ok := f.byID[id]
	if ok {
		b.Title, b.Body, b.Tags = title, body, tags
		if cover != nil {
			b.CoverImage = cover
		}
		f.update = append(f.update, id)
	}
	f.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f.GetByID(ctx, id)
}

func (f *fakeBlogs) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeBlogs) ToggleLike(_ context.Context, blogID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[blogID]; !ok {
		return false, repository.ErrNotFound
	}
	if f.likes[blogID] == nil {
		f.likes[blogID] = map[string]bool{}
	}
	if f.likes[blogID][userID] {
		delete(f.likes[blogID], userID)
		return false, nil
	}
	f.likes[blogID][userID] = true
	return true, nil
}

type fakeCache struct {
	mu      sync.Mutex
	flushed []string
}

func (f *fakeCache) Invalidate(_ context.Context, namespaces ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = append(f.flushed, namespaces...)
	return nil
}

// ----- messages -----

type fakeSubmitter struct {
	mu   sync.Mutex
	err  error
	reqs []realtime.Request
}

func (f *fakeSubmitter) Submit(_ context.Context, req realtime.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

type fakeLister struct {
	gotThread *string
	msgs      []model.Message
}

func (f *fakeLister) ListByThread(_ context.Context, threadID *string) ([]model.Message, error) {
	f.gotThread = threadID
	return f.msgs, nil
}

// ----- events -----

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []queue.BookingEvent
}

func (f *fakePublisher) Publish(_ context.Context, ev queue.BookingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

var nopLog = zap.NewNop()
