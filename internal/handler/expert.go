package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/config"
	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/repository"
	"github.com/iliyamo/farmwise/internal/response"
	"github.com/iliyamo/farmwise/internal/storage"
)

// ExpertStore is the expert profile persistence.
type ExpertStore interface {
	Create(ctx context.Context, e *model.Expert) error
	GetByID(ctx context.Context, id string) (*model.Expert, error)
	GetByUserID(ctx context.Context, userID string) (*model.Expert, error)
	List(ctx context.Context) ([]model.Expert, error)
	SetVerified(ctx context.Context, id string, verified bool) (*model.Expert, error)
}

// ExpertsCacheNamespace groups the cached expert listing responses.
const ExpertsCacheNamespace = "experts"

// idDocumentFields are the accepted multipart names of the identity
// document; adharPanDocument is what existing clients send.
var idDocumentFields = []string{"adharPanDocument", "idDocument"}

// CacheInvalidator drops cached responses; *middleware.ResponseCache.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, namespaces ...string) error
}

// ExpertHandler serves expert listing, verification submission and the
// admin approval switch.  Cache, when set, is flushed after every write
// that changes the listing.
type ExpertHandler struct {
	Experts  ExpertStore
	Users    UserStore
	Bookings BookingStore
	Uploads  storage.Uploader
	Cache    CacheInvalidator
	MaxBytes int64
	Log      *zap.Logger
}

func NewExpertHandler(cfg config.Config, experts ExpertStore, users UserStore, bookings BookingStore, up storage.Uploader, log *zap.Logger) *ExpertHandler {
	return &ExpertHandler{Experts: experts, Users: users, Bookings: bookings, Uploads: up, MaxBytes: cfg.Upload.MaxUploadSizeBytes, Log: log}
}

type verifyReq struct {
	Specialization  string `form:"specialization" json:"specialization"`
	Credential      string `form:"credential" json:"credential"`
	ExperienceYears int    `form:"experienceYears" json:"experienceYears"`
	City            string `form:"city" json:"city"`
	Country         string `form:"country" json:"country"`
	Bio             string `form:"bio" json:"bio"`
}

type setVerifiedReq struct {
	Status *bool `json:"status"`
}

// List returns every expert profile with its user populated.
func (h *ExpertHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	experts, err := h.Experts.List(ctx)
	if err != nil {
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusOK, experts, "Experts fetched successfully")
}

// Bookings lists the bookings of the expert owned by user :id, in the order
// they were made.
func (h *ExpertHandler) Bookings(c echo.Context) error {
	userID := c.Param("id")

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Experts.GetByUserID(ctx, userID); err != nil {
		return response.Error(c, err, "Expert not found")
	}
	bookings, err := h.Bookings.ListByExpertUser(ctx, userID)
	if err != nil {
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusOK, bookings, "Expert bookings fetched successfully")
}

// SubmitVerification files the verification profile of user :id together
// with its proof and identity documents.  One profile per user.
func (h *ExpertHandler) SubmitVerification(c echo.Context) error {
	userID := c.Param("id")
	if err := ownerOrAdmin(c, userID); err != nil {
		return response.Error(c, err, "cannot submit verification for another user")
	}
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	specialties := parseList(req.Specialization)
	if len(specialties) == 0 || strings.TrimSpace(req.Credential) == "" {
		return response.Fail(c, http.StatusBadRequest, "specialization and credential are required")
	}
	if req.ExperienceYears < 0 {
		return response.Fail(c, http.StatusBadRequest, "experienceYears must not be negative")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return response.Error(c, err, "user not found")
	}
	if u.UserType != model.UserTypeExpert {
		return response.Fail(c, http.StatusBadRequest, "only experts can submit verification")
	}
	_, err = h.Experts.GetByUserID(ctx, userID)
	if err == nil {
		return response.Fail(c, http.StatusConflict, "verification already submitted")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return response.Error(c, err, "")
	}

	proof, err := formFile(c, h.Uploads, storage.FolderExperts, h.MaxBytes, "proofDocument")
	if err != nil {
		h.Log.Warn("verification: proof upload failed", zap.String("user_id", userID), zap.Error(err))
		return uploadFailed(c, err)
	}
	idDoc, err := formFile(c, h.Uploads, storage.FolderExperts, h.MaxBytes, idDocumentFields...)
	if err != nil {
		h.Log.Warn("verification: id upload failed", zap.String("user_id", userID), zap.Error(err))
		return uploadFailed(c, err)
	}
	if proof == nil || idDoc == nil {
		return response.Fail(c, http.StatusBadRequest, "proofDocument and adharPanDocument are required")
	}

	e := &model.Expert{
		UserID:          userID,
		Specialization:  specialties,
		Credential:      strings.TrimSpace(req.Credential),
		CredentialDoc:   *proof,
		IDDoc:           *idDoc,
		ExperienceYears: req.ExperienceYears,
		City:            strings.TrimSpace(req.City),
		Country:         strings.TrimSpace(req.Country),
		Bio:             strings.TrimSpace(req.Bio),
	}
	if err := h.Experts.Create(ctx, e); err != nil {
		return response.Error(c, err, "verification already submitted")
	}
	h.invalidateListing(ctx)
	ref := u.Ref()
	e.User = &ref
	return response.OK(c, http.StatusCreated, e, "Verification submitted successfully")
}

// SetVerified is the admin switch on an expert profile.  Writing the
// current value again succeeds.
func (h *ExpertHandler) SetVerified(c echo.Context) error {
	var req setVerifiedReq
	if err := c.Bind(&req); err != nil || req.Status == nil {
		return response.Fail(c, http.StatusBadRequest, "status (boolean) is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	e, err := h.Experts.SetVerified(ctx, c.Param("id"), *req.Status)
	if err != nil {
		return response.Error(c, err, "Expert not found")
	}
	h.invalidateListing(ctx)
	msg := "Expert verified successfully"
	if !*req.Status {
		msg = "Expert verification revoked"
	}
	return response.OK(c, http.StatusOK, e, msg)
}

func (h *ExpertHandler) invalidateListing(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, ExpertsCacheNamespace); err != nil {
		h.Log.Warn("expert listing cache not invalidated", zap.Error(err))
	}
}
