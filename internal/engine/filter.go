package engine

import (
	"github.com/hummingbirdtestai/mocktest-engine/internal/model"
)

// FilterPalette returns the subset of questions visible under the given
// selection. The status each question is matched against is derived on the
// spot, never read from a cached field. The input slice is not mutated and
// the result is always a fresh slice, so re-applying the same filter is
// idempotent.
func FilterPalette(questions []model.Question, sel model.FilterSelection, mode model.SessionMode) []model.Question {
	out := make([]model.Question, 0, len(questions))
	for i := range questions {
		if matchesFilter(&questions[i], sel, mode) {
			out = append(out, questions[i])
		}
	}
	return out
}

func matchesFilter(q *model.Question, sel model.FilterSelection, mode model.SessionMode) bool {
	if sel == model.FilterAll {
		return true
	}

	if mode == model.ModeReview {
		switch model.DeriveReviewStatus(q) {
		case model.ReviewCorrect:
			return sel == model.FilterCorrect
		case model.ReviewWrong:
			return sel == model.FilterWrong
		case model.ReviewSkipped:
			return sel == model.FilterSkipped
		case model.ReviewUnanswered:
			return sel == model.FilterUnanswered
		default:
			// PENDING is only reachable through "all".
			return false
		}
	}

	switch model.DeriveStatus(q) {
	case model.StatusAnswered:
		return sel == model.FilterAnswered
	case model.StatusMarked:
		return sel == model.FilterMarked
	case model.StatusSkipped:
		return sel == model.FilterSkipped
	default:
		return sel == model.FilterUnanswered
	}
}

// BuildPalette produces the full read-model palette with statuses derived at
// read time. The current-question highlight is carried by identity (global
// sequence), so it stays locatable even when the active filter hides it.
func BuildPalette(questions []model.Question, mode model.SessionMode, currentID int) []model.PaletteEntry {
	entries := make([]model.PaletteEntry, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		entry := model.PaletteEntry{
			GlobalSequence:  q.GlobalSequence,
			SectionSequence: q.SectionSequence,
			Current:         q.GlobalSequence == currentID,
		}
		if mode == model.ModeReview {
			rs := model.DeriveReviewStatus(q)
			entry.ReviewStatus = &rs
		} else {
			st := model.DeriveStatus(q)
			entry.Status = &st
		}
		entries = append(entries, entry)
	}
	return entries
}
