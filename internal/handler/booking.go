package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/middleware"
	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/queue"
	"github.com/iliyamo/farmwise/internal/response"
	"github.com/iliyamo/farmwise/internal/service"
)

const publishTimeout = 3 * time.Second

// BookingStore is the booking persistence.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	SetStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, error)
	ListAll(ctx context.Context) ([]model.Booking, error)
	ListByFarmer(ctx context.Context, farmerID string) ([]model.Booking, error)
	ListByStatus(ctx context.Context, status model.BookingStatus) ([]model.Booking, error)
	ListByExpertUser(ctx context.Context, userID string) ([]model.Booking, error)
}

type BookingHandler struct {
	Bookings BookingStore
	Events   service.BookingPublisher
	Log      *zap.Logger
}

func NewBookingHandler(bookings BookingStore, events service.BookingPublisher, log *zap.Logger) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Events: events, Log: log}
}

type applyReq struct {
	ExpertID string `json:"expertId" form:"expertId"`
	Date     string `json:"date" form:"date"`
	Time     string `json:"time" form:"time"`
	Message  string `json:"message" form:"message"`
}

// Apply books the caller (a farmer) with an expert.  The booking starts
// pending and is appended to the expert's list in the same transaction.
func (h *BookingHandler) Apply(c echo.Context) error {
	var req applyReq
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	req.ExpertID = strings.TrimSpace(req.ExpertID)
	req.Time = strings.TrimSpace(req.Time)
	if req.ExpertID == "" || req.Date == "" || req.Time == "" {
		return response.Fail(c, http.StatusBadRequest, "expertId, date and time are required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return response.Fail(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	b := &model.Booking{
		FarmerID: middleware.UserID(c),
		ExpertID: req.ExpertID,
		Date:     req.Date,
		Time:     req.Time,
		Message:  strings.TrimSpace(req.Message),
	}
	if err := h.Bookings.Create(ctx, b); err != nil {
		return response.Error(c, err, "Expert not found")
	}
	if full, err := h.Bookings.GetByID(ctx, b.ID); err == nil {
		b = full
	}
	h.publish(c, queue.BookingCreatedQueue, b)
	return response.OK(c, http.StatusCreated, b, "Booking request submitted")
}

func (h *BookingHandler) ListAll(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	bookings, err := h.Bookings.ListAll(ctx)
	if err != nil {
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusOK, bookings, "Bookings fetched successfully")
}

// ListByFarmer returns the bookings made by farmer :id.
func (h *BookingHandler) ListByFarmer(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	bookings, err := h.Bookings.ListByFarmer(ctx, c.Param("id"))
	if err != nil {
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusOK, bookings, "Bookings fetched successfully")
}

func (h *BookingHandler) Accepted(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	bookings, err := h.Bookings.ListByStatus(ctx, model.BookingConfirmed)
	if err != nil {
		return response.Error(c, err, "")
	}
	return response.OK(c, http.StatusOK, bookings, "Accepted applications fetched successfully")
}

// Accept confirms a booking.  Only the booked expert's user or an admin may
// do so; confirming twice is allowed.
func (h *BookingHandler) Accept(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	id := c.Param("bookingId")
	cur, err := h.Bookings.GetByID(ctx, id)
	if err != nil {
		return response.Error(c, err, "Booking not found")
	}
	expertUser := ""
	if cur.Expert != nil {
		expertUser = cur.Expert.UserID
	}
	if err := ownerOrAdmin(c, expertUser); err != nil {
		return response.Error(c, err, "only the booked expert can confirm")
	}
	b, err := h.Bookings.SetStatus(ctx, id, model.BookingConfirmed)
	if err != nil {
		return response.Error(c, err, "Booking not found")
	}
	h.publish(c, queue.BookingConfirmedQueue, b)
	return response.OK(c, http.StatusOK, b, "Booking confirmed")
}

// publish emits a booking event.  Failures are logged and never fail the
// request.
func (h *BookingHandler) publish(c echo.Context, kind string, b *model.Booking) {
	if h.Events == nil {
		return
	}
	expertUser := ""
	if b.Expert != nil {
		expertUser = b.Expert.UserID
	}
	ev := queue.NewBookingEvent(kind, b.ID, b.FarmerID, b.ExpertID, expertUser, b.Date, b.Time, string(b.Status))
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), publishTimeout)
	defer cancel()
	if err := h.Events.Publish(ctx, ev); err != nil {
		h.Log.Warn("booking event not published", zap.String("type", kind), zap.String("booking_id", b.ID), zap.Error(err))
	}
}
