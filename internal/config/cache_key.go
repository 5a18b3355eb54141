package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionSnapshotKey returns the cache key for a student's rendered
// session snapshot. Written after every mutation; never read for resume.
func (r *CacheKeyStruct) SessionSnapshotKey(studentID string) string {
	return fmt.Sprintf("student:%s:session:snapshot", studentID)
}

// SectionClockKey returns the cache key mirroring a section's remaining
// seconds, so monitoring tooling can watch countdowns without touching
// the engine.
func (r *CacheKeyStruct) SectionClockKey(studentID, sectionID string) string {
	return fmt.Sprintf("student:%s:section:%s:clock", studentID, sectionID)
}

var CacheKey = NewCacheKeyStruct()
