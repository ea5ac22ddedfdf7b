package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vidtube/account-service/internal/api/metrics"
	"github.com/vidtube/account-service/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// WatchEvent records that a user watched a video.
type WatchEvent struct {
	UserID  string
	VideoID string
}

// HistoryRecorder appends watch events to user histories asynchronously.
// Events are routed to a fixed set of workers by consistent hashing on the
// user id, so one user's history is always appended in arrival order.
type HistoryRecorder struct {
	workers []chan WatchEvent
	repo    ports.UserRepository
	log     zerolog.Logger
}

// NewHistoryRecorder creates a HistoryRecorder with numWorkers sharded
// workers. If numWorkers <= 0, defaultWorkers is used.
func NewHistoryRecorder(numWorkers int, repo ports.UserRepository, log zerolog.Logger) *HistoryRecorder {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	r := &HistoryRecorder{
		workers: make([]chan WatchEvent, numWorkers),
		repo:    repo,
		log:     log,
	}
	for i := range r.workers {
		r.workers[i] = make(chan WatchEvent, channelBuffer)
	}
	return r
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (r *HistoryRecorder) Start(ctx context.Context) {
	for i, ch := range r.workers {
		go r.runWorker(ctx, i, ch)
	}
}

// Enqueue routes an event to the worker owning its user id. Non-blocking up
// to channelBuffer capacity.
func (r *HistoryRecorder) Enqueue(event WatchEvent) {
	idx := r.shardIndex(event.UserID)
	r.workers[idx] <- event
	metrics.HistoryQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(r.workers[idx])))
}

// shardIndex maps a user id deterministically to a worker index.
func (r *HistoryRecorder) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()) % len(r.workers)
}

func (r *HistoryRecorder) runWorker(ctx context.Context, id int, ch <-chan WatchEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := r.repo.AppendWatchHistory(ctx, event.UserID, event.VideoID); err != nil {
				r.log.Error().Err(err).
					Str("user_id", event.UserID).
					Str("video_id", event.VideoID).
					Int("worker_id", id).
					Msg("watch history append failed")
			}
			metrics.HistoryQueueDepth.WithLabelValues(strconv.Itoa(id)).Set(float64(len(ch)))
		}
	}
}
