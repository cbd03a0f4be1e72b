package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/model"
)

// DuplicateWindow is how far back an identical body from the same author
// suppresses a new submission.
const DuplicateWindow = 2 * time.Second

var (
	ErrQueueFull = errors.New("ingestion queue full")
	ErrStopped   = errors.New("ingestion stopped")
	ErrNoAuthor  = errors.New("message has no author")
)

// MessageStore is the persistence the ingestor needs.
type MessageStore interface {
	FindRecentDuplicate(ctx context.Context, authorID, body string, window time.Duration) (*model.Message, error)
	Create(ctx context.Context, in model.NewMessage) (*model.Message, error)
	FindByID(ctx context.Context, id string) (*model.Message, error)
}

// Request is one submission.  Reply receives the private ack or error; it
// is nil for submissions that arrive over REST.
type Request struct {
	Input model.NewMessage
	Reply Deliverer
}

// Ingestor runs the dedup, persist, re-read, broadcast, ack pipeline.
// Requests are sharded by author onto ordered queues, so one author's
// submissions are handled in order and never race their own dedup check.
type Ingestor struct {
	store     MessageStore
	out       Broadcaster
	queues    []chan Request
	opTimeout time.Duration
	log       *zap.Logger
	metrics   *Metrics

	stopped  chan struct{}
	stopOnce sync.Once
}

func NewIngestor(store MessageStore, out Broadcaster, workers, queueSize int, log *zap.Logger, m *Metrics) *Ingestor {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	qs := make([]chan Request, workers)
	for i := range qs {
		qs[i] = make(chan Request, queueSize)
	}
	return &Ingestor{
		store:     store,
		out:       out,
		queues:    qs,
		opTimeout: 5 * time.Second,
		log:       log,
		metrics:   m,
		stopped:   make(chan struct{}),
	}
}

// Run processes queued requests until ctx is cancelled, then waits for the
// workers to finish their current request.
func (i *Ingestor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, q := range i.queues {
		wg.Add(1)
		go func(q <-chan Request) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case req := <-q:
					i.process(ctx, req)
				}
			}
		}(q)
	}
	<-ctx.Done()
	i.stopOnce.Do(func() { close(i.stopped) })
	wg.Wait()
	i.log.Info("ingestor stopped")
}

// Submit enqueues req on its author's queue.  It blocks until there is room,
// ctx is done (ErrQueueFull) or the ingestor stops (ErrStopped).  Blank
// optional references are cleared first.
func (i *Ingestor) Submit(ctx context.Context, req Request) error {
	if req.Input.AuthorID == "" {
		return ErrNoAuthor
	}
	req.Input.Normalize()
	q := i.queues[i.shard(req.Input.AuthorID)]
	select {
	case <-i.stopped:
		return ErrStopped
	default:
	}
	select {
	case q <- req:
		return nil
	case <-i.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ErrQueueFull
	}
}

func (i *Ingestor) shard(authorID string) int {
	return int(xxhash.Sum64String(authorID) % uint64(len(i.queues)))
}

func (i *Ingestor) process(parent context.Context, req Request) {
	ctx, cancel := context.WithTimeout(parent, i.opTimeout)
	defer cancel()
	in := req.Input
	log := i.log.With(zap.String("author_id", in.AuthorID))

	if in.Body != nil {
		dup, err := i.store.FindRecentDuplicate(ctx, in.AuthorID, *in.Body, DuplicateWindow)
		if err != nil {
			i.fail(req, log, "dedup lookup failed", err)
			return
		}
		if dup != nil {
			i.metrics.Messages.WithLabelValues("duplicate").Inc()
			log.Debug("duplicate submission dropped", zap.String("existing_id", dup.ID))
			return
		}
	}

	created, err := i.store.Create(ctx, in)
	if err != nil {
		i.fail(req, log, "persist failed", err)
		return
	}
	msg, err := i.store.FindByID(ctx, created.ID)
	if err != nil {
		i.fail(req, log, "reload failed", err)
		return
	}
	frame, err := encode(EventMessageReceived, msg)
	if err != nil {
		i.fail(req, log, "encode failed", err)
		return
	}
	i.metrics.Messages.WithLabelValues("persisted").Inc()
	i.out.Broadcast(frame)
	if req.Reply != nil {
		req.Reply.Deliver(mustEncode(EventSubmitAck, Ack{Success: true, MessageID: msg.ID}))
	}
}

func (i *Ingestor) fail(req Request, log *zap.Logger, what string, err error) {
	i.metrics.Messages.WithLabelValues("failed").Inc()
	log.Error(what, zap.Error(err))
	if req.Reply != nil {
		req.Reply.Deliver(mustEncode(EventSubmitError, SubmitError{Message: failedToSend}))
	}
}
