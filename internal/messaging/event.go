// Package messaging publishes exam lifecycle events for downstream consumers
// (grading dashboards, review queues).
package messaging

import (
	"context"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

const EventExamSubmitted = "exam.submitted"

// ExamSubmittedEvent is emitted once per successful submission.
type ExamSubmittedEvent struct {
	Type           string               `json:"type"`
	EventID        string               `json:"event_id"`
	Candidate      string               `json:"candidate,omitempty"`
	Score          int                  `json:"score"`
	TotalQuestions int                  `json:"total_questions"`
	Answered       int                  `json:"answered"`
	SuspicionLevel model.SuspicionLevel `json:"suspicion_level"`
	Flags          []string             `json:"flags"`
	RecordingRef   string               `json:"recording_ref,omitempty"`
	SubmittedAt    time.Time            `json:"submitted_at"`
}

// Notifier delivers exam events.
type Notifier interface {
	NotifySubmitted(ctx context.Context, evt ExamSubmittedEvent) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) NotifySubmitted(context.Context, ExamSubmittedEvent) error { return nil }
