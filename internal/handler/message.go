package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/config"
	"github.com/iliyamo/farmwise/internal/middleware"
	"github.com/iliyamo/farmwise/internal/model"
	"github.com/iliyamo/farmwise/internal/realtime"
	"github.com/iliyamo/farmwise/internal/response"
	"github.com/iliyamo/farmwise/internal/storage"
)

// enqueueTimeout is how long a REST submission waits for room on its
// ingestion queue before answering 503.
const enqueueTimeout = 2 * time.Second

// MessageLister reads persisted messages.
type MessageLister interface {
	ListByThread(ctx context.Context, threadID *string) ([]model.Message, error)
}

// MessageSubmitter accepts ingestion requests; *realtime.Ingestor in
// production.
type MessageSubmitter interface {
	Submit(ctx context.Context, req realtime.Request) error
}

type MessageHandler struct {
	Messages MessageLister
	Ingest   MessageSubmitter
	Uploads  storage.Uploader
	MaxBytes int64
	Log      *zap.Logger
}

func NewMessageHandler(cfg config.Config, messages MessageLister, ingest MessageSubmitter, up storage.Uploader, log *zap.Logger) *MessageHandler {
	return &MessageHandler{Messages: messages, Ingest: ingest, Uploads: up, MaxBytes: cfg.Upload.MaxUploadSizeBytes, Log: log}
}

type sendReq struct {
	Body      *string `json:"body"`
	ThreadID  *string `json:"threadId"`
	ReplyToID *string `json:"replyToId"`
}

func bindSend(c echo.Context) (sendReq, error) {
	var req sendReq
	if isJSON(c) {
		err := json.NewDecoder(c.Request().Body).Decode(&req)
		return req, err
	}
	params, err := c.FormParams()
	if err != nil {
		return req, err
	}
	req.Body = formPtr(params, "body")
	req.ThreadID = formPtr(params, "threadId")
	req.ReplyToID = formPtr(params, "replyToId")
	return req, nil
}

// Send uploads the optional image and hands the message to the ingestion
// pipeline.  It never waits for persistence: the result reaches clients as
// a message-received broadcast.
func (h *MessageHandler) Send(c echo.Context) error {
	req, err := bindSend(c)
	if err != nil {
		return response.Fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Body == nil {
		return response.Fail(c, http.StatusBadRequest, "body is required")
	}
	threadID := blankToNil(req.ThreadID)
	if threadID != nil && len(*threadID) > realtime.MaxThreadIDLen {
		return response.Fail(c, http.StatusBadRequest, "threadId is too long")
	}
	img, err := formFile(c, h.Uploads, storage.FolderMessages, h.MaxBytes, "image")
	if err != nil {
		h.Log.Warn("message image upload failed", zap.Error(err))
		return uploadFailed(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), enqueueTimeout)
	defer cancel()

	author := middleware.UserID(c)
	err = h.Ingest.Submit(ctx, realtime.Request{Input: model.NewMessage{
		AuthorID:  author,
		Body:      req.Body,
		ThreadID:  threadID,
		ReplyToID: blankToNil(req.ReplyToID),
		ImageRef:  img,
	}})
	if err != nil {
		h.Log.Warn("message enqueue failed", zap.String("author_id", author), zap.Error(err))
		if errors.Is(err, realtime.ErrNoAuthor) {
			return response.Fail(c, http.StatusUnauthorized, "Unauthorized request")
		}
		return response.Fail(c, http.StatusServiceUnavailable, "Message queue is busy, try again")
	}
	return response.OK(c, http.StatusAccepted, echo.Map{"success": true}, "Message request received")
}

// List returns the messages of ?threadId, or all messages when it is
// absent, oldest first.
func (h *MessageHandler) List(c echo.Context) error {
	var thread *string
	if t := strings.TrimSpace(c.QueryParam("threadId")); t != "" {
		thread = &t
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	msgs, err := h.Messages.ListByThread(ctx, thread)
	if err != nil {
		return response.Error(c, err, "invalid thread")
	}
	return response.OK(c, http.StatusOK, msgs, "Messages retrieved successfully")
}
