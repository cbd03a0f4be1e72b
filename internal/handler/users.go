package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/config"
	"github.com/iliyamo/farmwise/internal/middleware"
	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/repository"
	"github.com/iliyamo/farmwise/internal/response"
	"github.com/iliyamo/farmwise/internal/storage"
	"github.com/iliyamo/farmwise/internal/utils"
)

// RefreshCookie carries the raw refresh token for browsers.
const RefreshCookie = "refreshToken"

// AdminKeyHeader must match ADMIN_SIGNUP_KEY to register an admin.
const AdminKeyHeader = "X-Admin-Key"

// UserStore is the account persistence used by UserHandler.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	GetByLogin(ctx context.Context, login string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListByType(ctx context.Context, t model.UserType) ([]model.User, error)
	SetRefreshHash(ctx context.Context, id string, hash *string) error
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateAccount(ctx context.Context, id, fullName, email string) error
	UpdateProfileImage(ctx context.Context, id, url string) error
}

// UserHandler bundles dependencies for the account endpoints.
type UserHandler struct {
	Cfg     config.Config
	Users   UserStore
	Experts ExpertStore
	Hasher  utils.PasswordHasher
	Uploads storage.Uploader
	Log     *zap.Logger
}

func NewUserHandler(cfg config.Config, users UserStore, experts ExpertStore, hasher utils.PasswordHasher, up storage.Uploader, log *zap.Logger) *UserHandler {
	return &UserHandler{Cfg: cfg, Users: users, Experts: experts, Hasher: hasher, Uploads: up, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	FullName       string `json:"fullName" form:"fullName"`
	Email          string `json:"email" form:"email"`
	Username       string `json:"username" form:"username"`
	Password       string `json:"password" form:"password"`
	UserType       string `json:"userType" form:"userType"`
	MobileNo       string `json:"mobileNo" form:"mobileNo"`
	Specialization string `json:"specialization" form:"specialization"`
}

type loginReq struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

type changePasswordReq struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountReq struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type loginResp struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	Verified     *bool       `json:"verified,omitempty"`
}

type tokenResp struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Register creates an account.  An optional profileImage file is uploaded
// first; experts must name a specialization and admins must present the
// signup key.
func (h *UserHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	for _, f := range []string{req.FullName, req.Email, req.Username, req.Password, req.MobileNo} {
		if strings.TrimSpace(f) == "" {
			return response.Fail(c, http.StatusBadRequest, "All fields are required")
		}
	}
	ut := model.UserType(strings.ToLower(strings.TrimSpace(req.UserType)))
	if ut == "" {
		ut = model.UserTypeFarmer
	}
	if !ut.Valid() {
		return response.Fail(c, http.StatusBadRequest, "invalid userType")
	}
	var specialty *string
	switch ut {
	case model.UserTypeExpert:
		s := strings.TrimSpace(req.Specialization)
		if s == "" {
			return response.Fail(c, http.StatusBadRequest, "Specialization is required for experts")
		}
		specialty = &s
	case model.UserTypeAdmin:
		key := c.Request().Header.Get(AdminKeyHeader)
		if h.Cfg.AdminSignupKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.Cfg.AdminSignupKey)) != 1 {
			return response.Fail(c, http.StatusForbidden, "admin registration is not allowed")
		}
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	exists, err := h.Users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		h.Log.Error("register: exists check failed", zap.Error(err))
		return response.Error(c, err, "")
	}
	if exists {
		return response.Fail(c, http.StatusConflict, "User with email or username already exists")
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		return response.Error(c, err, "")
	}
	img, err := formFile(c, h.Uploads, storage.FolderProfiles, h.Cfg.Upload.MaxUploadSizeBytes, "profileImage")
	if err != nil {
		h.Log.Warn("register: profile image upload failed", zap.Error(err))
		return uploadFailed(c, err)
	}

	u := &model.User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   hash,
		FullName:       strings.TrimSpace(req.FullName),
		UserType:       ut,
		MobileNo:       strings.TrimSpace(req.MobileNo),
		Specialization: specialty,
		ProfileImage:   img,
	}
	if err := h.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return response.Fail(c, http.StatusConflict, "User with email or username already exists")
		}
		h.Log.Error("register: create failed", zap.Error(err))
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusCreated, u, "User registered Successfully")
}

// Login accepts a username or an email plus password and issues a token
// pair.  Experts also learn whether their profile is verified.
func (h *UserHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	login := strings.TrimSpace(req.Username)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" {
		return response.Fail(c, http.StatusBadRequest, "username or email is required")
	}
	if req.Password == "" {
		return response.Fail(c, http.StatusBadRequest, "password is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByLogin(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		return response.Fail(c, http.StatusNotFound, "User does not exist")
	}
	if err != nil {
		return response.Error(c, err, "")
	}
	if !h.Hasher.Verify(u.PasswordHash, req.Password) {
		return response.Fail(c, http.StatusUnauthorized, "Invalid user credentials")
	}

	access, refresh, err := h.issue(ctx, u)
	if err != nil {
		h.Log.Error("login: issue tokens failed", zap.String("user_id", u.ID), zap.Error(err))
		return response.Error(c, err, "")
	}
	h.setCookies(c, access, refresh)

	out := loginResp{User: u, AccessToken: access.Token, RefreshToken: refresh.Raw}
	if u.UserType == model.UserTypeExpert {
		verified := false
		e, err := h.Experts.GetByUserID(ctx, u.ID)
		switch {
		case err == nil:
			verified = e.Verified
		case !errors.Is(err, repository.ErrNotFound):
			h.Log.Warn("login: expert lookup failed", zap.String("user_id", u.ID), zap.Error(err))
		}
		out.Verified = &verified
	}
	return response.OK(c, http.StatusOK, out, "User logged In Successfully")
}

// Logout forgets the stored refresh hash and clears both cookies.
func (h *UserHandler) Logout(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.SetRefreshHash(ctx, middleware.UserID(c), nil); err != nil {
		return response.Error(c, err, "user not found")
	}
	h.clearCookies(c)
	return response.OK(c, http.StatusOK, echo.Map{}, "User logged Out")
}

// RefreshToken rotates the pair.  The presented token must be the one whose
// hash is stored on the user, so a token that was already rotated or
// revoked by logout is rejected.
func (h *UserHandler) RefreshToken(c echo.Context) error {
	raw := ""
	if ck, err := c.Cookie(RefreshCookie); err == nil {
		raw = ck.Value
	}
	if raw == "" {
		var req refreshReq
		_ = c.Bind(&req)
		raw = strings.TrimSpace(req.RefreshToken)
	}
	if raw == "" {
		return response.Fail(c, http.StatusUnauthorized, "unauthorized request")
	}
	claims, err := utils.ParseRefreshToken(h.Cfg.RefreshSecret, raw)
	if err != nil {
		return response.Fail(c, http.StatusUnauthorized, "Invalid refresh token")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return response.Fail(c, http.StatusUnauthorized, "Invalid refresh token")
	}
	if err != nil {
		return response.Error(c, err, "")
	}
	want := utils.HashRefreshRaw(raw)
	if u.RefreshTokenHash == nil || subtle.ConstantTimeCompare([]byte(*u.RefreshTokenHash), []byte(want)) != 1 {
		return response.Fail(c, http.StatusUnauthorized, "Refresh token is expired or used")
	}

	access, refresh, err := h.issue(ctx, u)
	if err != nil {
		return response.Error(c, err, "")
	}
	h.setCookies(c, access, refresh)
	return response.OK(c, http.StatusOK, tokenResp{AccessToken: access.Token, RefreshToken: refresh.Raw}, "Access token refreshed")
}

func (h *UserHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		return response.Fail(c, http.StatusBadRequest, "oldPassword and newPassword are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		return response.Error(c, err, "user not found")
	}
	if !h.Hasher.Verify(u.PasswordHash, req.OldPassword) {
		return response.Fail(c, http.StatusBadRequest, "Invalid old password")
	}
	hash, err := h.Hasher.Hash(req.NewPassword)
	if err != nil {
		return response.Error(c, err, "")
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return response.Error(c, err, "user not found")
	}
	return response.OK(c, http.StatusOK, echo.Map{}, "Password changed successfully")
}

func (h *UserHandler) CurrentUser(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		return response.Error(c, err, "user not found")
	}
	return response.OK(c, http.StatusOK, u, "current user fetched successfully")
}

func (h *UserHandler) UpdateAccount(c echo.Context) error {
	var req updateAccountReq
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FullName == "" || req.Email == "" {
		return response.Fail(c, http.StatusBadRequest, "All fields are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	id := middleware.UserID(c)
	if err := h.Users.UpdateAccount(ctx, id, req.FullName, req.Email); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return response.Fail(c, http.StatusConflict, "email already in use")
		}
		return response.Error(c, err, "user not found")
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return response.Error(c, err, "user not found")
	}
	return response.OK(c, http.StatusOK, u, "Account details updated successfully")
}

func (h *UserHandler) UpdateProfileImage(c echo.Context) error {
	img, err := formFile(c, h.Uploads, storage.FolderProfiles, h.Cfg.Upload.MaxUploadSizeBytes, "profileImage")
	if err != nil {
		h.Log.Warn("profile image upload failed", zap.Error(err))
		return uploadFailed(c, err)
	}
	if img == nil {
		return response.Fail(c, http.StatusBadRequest, "profileImage file is missing")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	id := middleware.UserID(c)
	if err := h.Users.UpdateProfileImage(ctx, id, *img); err != nil {
		return response.Error(c, err, "user not found")
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return response.Error(c, err, "user not found")
	}
	return response.OK(c, http.StatusOK, u, "Profile image updated successfully")
}

func (h *UserHandler) ListFarmers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	farmers, err := h.Users.ListByType(ctx, model.UserTypeFarmer)
	if err != nil {
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusOK, farmers, "Farmers fetched successfully")
}

// issue mints a token pair and stores the refresh hash on the user,
// invalidating any earlier refresh token.
func (h *UserHandler) issue(ctx context.Context, u *model.User) (utils.AccessToken, utils.RefreshToken, error) {
	access, err := utils.NewAccessToken(h.Cfg.AccessSecret, u.ID, string(u.UserType), h.Cfg.AccessTTLMin)
	if err != nil {
		return utils.AccessToken{}, utils.RefreshToken{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshSecret, u.ID, h.Cfg.RefreshTTLDays)
	if err != nil {
		return utils.AccessToken{}, utils.RefreshToken{}, err
	}
	hash := utils.HashRefreshRaw(refresh.Raw)
	if err := h.Users.SetRefreshHash(ctx, u.ID, &hash); err != nil {
		return utils.AccessToken{}, utils.RefreshToken{}, err
	}
	u.RefreshTokenHash = &hash
	return access, refresh, nil
}

func (h *UserHandler) setCookies(c echo.Context, access utils.AccessToken, refresh utils.RefreshToken) {
	c.SetCookie(h.cookie(middleware.AccessCookie, access.Token, access.Exp))
	c.SetCookie(h.cookie(RefreshCookie, refresh.Raw, refresh.Exp))
}

func (h *UserHandler) clearCookies(c echo.Context) {
	for _, name := range []string{middleware.AccessCookie, RefreshCookie} {
		ck := h.cookie(name, "", time.Unix(0, 0))
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

func (h *UserHandler) cookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
