package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hummingbirdtestai/mocktest-engine/internal/config"
	"github.com/hummingbirdtestai/mocktest-engine/internal/model"
)

// SnapshotStore mirrors session snapshots into Redis and hands bookmark
// events to the persistence queue. Every write here is best-effort: the
// engine never blocks an intent on Redis, and failures only cost a stale
// rendering cache.
type SnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "snapshot_store").Logger(),
	}
}

// WriteSnapshot stores the full serialized snapshot plus a cheap
// per-section clock key that monitors can poll without parsing JSON.
func (s *SnapshotStore) WriteSnapshot(ctx context.Context, snap *model.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal snapshot error")
		return
	}

	key := config.CacheKey.SessionSnapshotKey(snap.StudentID)
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Write snapshot error")
		return
	}

	if snap.CurrentSectionID != "" {
		clockKey := config.CacheKey.SectionClockKey(snap.StudentID, snap.CurrentSectionID)
		if err := s.rdb.Set(ctx, clockKey, strconv.Itoa(snap.TimeRemainingSec), s.ttl).Err(); err != nil {
			s.log.Error().Err(err).Str("key", clockKey).Msg("Write clock error")
		}
	}
}

// ReadSnapshot returns the cached snapshot for a student, or nil when no
// cache entry exists. Callers treat a miss as "ask the engine".
func (s *SnapshotStore) ReadSnapshot(ctx context.Context, studentID string) (*model.Snapshot, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SessionSnapshotKey(studentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &model.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Invalidate removes the cached snapshot, used when a session is torn down.
func (s *SnapshotStore) Invalidate(ctx context.Context, studentID string) {
	if err := s.rdb.Del(ctx, config.CacheKey.SessionSnapshotKey(studentID)).Err(); err != nil {
		s.log.Error().Err(err).Str("student_id", studentID).Msg("Invalidate error")
	}
}

type bookmarkEvent struct {
	StudentID   string `json:"student_id"`
	QuestionSeq int    `json:"question_seq"`
	Marked      bool   `json:"marked"`
}

// EnqueueBookmark pushes a bookmark toggle onto the persistence queue.
func (s *SnapshotStore) EnqueueBookmark(ctx context.Context, studentID string, questionSeq int, marked bool) {
	payload, err := json.Marshal(bookmarkEvent{
		StudentID:   studentID,
		QuestionSeq: questionSeq,
		Marked:      marked,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal bookmark error")
		return
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistBookmarksQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).
			Str("student_id", studentID).
			Int("question_seq", questionSeq).
			Msg("Enqueue bookmark error")
	}
}
