package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Bookmark is a durable record of a question the student flagged for
// revisit. The live mark lives in the in-memory session; this table is
// the copy that survives restarts and feeds post-exam analytics.
type Bookmark struct {
	StudentID   string    `json:"student_id"`
	QuestionSeq int       `json:"question_seq"`
	Marked      bool      `json:"marked"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BookmarkRepository handles bookmark data access.
type BookmarkRepository struct {
	pool *pgxpool.Pool
}

// NewBookmarkRepository creates a new BookmarkRepository.
func NewBookmarkRepository(pool *pgxpool.Pool) *BookmarkRepository {
	return &BookmarkRepository{pool: pool}
}

// Upsert creates or updates the bookmark for a student-question pair.
func (r *BookmarkRepository) Upsert(ctx context.Context, b *Bookmark) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO question_bookmarks (student_id, question_seq, marked)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (student_id, question_seq) DO UPDATE
		 SET marked = EXCLUDED.marked, updated_at = NOW()`,
		b.StudentID, b.QuestionSeq, b.Marked,
	)
	return err
}

// ListByStudent retrieves all active bookmarks for a student, ordered by
// question sequence.
func (r *BookmarkRepository) ListByStudent(ctx context.Context, studentID string) ([]Bookmark, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, question_seq, marked, updated_at
		 FROM question_bookmarks
		 WHERE student_id = $1 AND marked = TRUE
		 ORDER BY question_seq`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookmarks []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.StudentID, &b.QuestionSeq, &b.Marked, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}
