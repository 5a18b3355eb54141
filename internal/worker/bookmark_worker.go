package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hummingbirdtestai/mocktest-engine/internal/config"
	"github.com/hummingbirdtestai/mocktest-engine/internal/repository"
)

// BookmarkWorker consumes persist_bookmarks_queue and UPSERTs bookmark
// flags to PostgreSQL. Bookmark persistence is deliberately off the
// intent path: toggling a mark must not wait on the database.
type BookmarkWorker struct {
	repo *repository.BookmarkRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewBookmarkWorker creates a new BookmarkWorker.
func NewBookmarkWorker(repo *repository.BookmarkRepository, rdb *redis.Client, log zerolog.Logger) *BookmarkWorker {
	return &BookmarkWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "bookmark_worker").Logger(),
	}
}

type bookmarkPayload struct {
	StudentID   string `json:"student_id"`
	QuestionSeq int    `json:"question_seq"`
	Marked      bool   `json:"marked"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *BookmarkWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *BookmarkWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistBookmarksQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload bookmarkPayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistBookmark(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Str("student_id", payload.StudentID).
			Int("question_seq", payload.QuestionSeq).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistBookmarksQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *BookmarkWorker) persistBookmark(ctx context.Context, p *bookmarkPayload) error {
	return w.repo.Upsert(ctx, &repository.Bookmark{
		StudentID:   p.StudentID,
		QuestionSeq: p.QuestionSeq,
		Marked:      p.Marked,
	})
}

// drain processes all remaining items in the queue before shutdown.
func (w *BookmarkWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistBookmarksQueue).Result()
		if err != nil {
			break
		}

		var payload bookmarkPayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistBookmark(ctx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistBookmarksQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
