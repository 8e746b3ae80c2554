package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ReportSlot returns the fixed storage slot of the exam report.
func (r *CacheKeyStruct) ReportSlot() string {
	return "examReport"
}

// RedisReportKey returns the Redis key holding the report stored in slot.
func (r *CacheKeyStruct) RedisReportKey(slot string) string {
	return fmt.Sprintf("portal:report:%s", slot)
}

// RecordingObjectKey returns the archive object name of a retained recording.
func (r *CacheKeyStruct) RecordingObjectKey(day, id, ext string) string {
	return fmt.Sprintf("recordings/%s/%s.%s", day, id, ext)
}

// SubmittedEventsQueue is the Redis list buffering exam.submitted events
// until the broker accepts them.
func (r *CacheKeyStruct) SubmittedEventsQueue() string {
	return "portal:queue:exam_submitted"
}


// CandidateReportSlot scopes the report slot to one candidate so reports of
// different candidates on a shared machine do not overwrite each other.
func (r *CacheKeyStruct) CandidateReportSlot(base, subject string) string {
	if subject == "" {
		return base
	}
	return fmt.Sprintf("%s:%s", base, subject)
}

var CacheKey = NewCacheKeyStruct()
