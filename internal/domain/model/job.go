package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLen bounds a job's prompt, counted in characters.
const MaxMessageLen = 3000

type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo encodes queued -> processing -> {completed, failed}.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case JobQueued:
		return next == JobProcessing
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// Job is one queued prompt and its full processing record.
type Job struct {
	ID             int64
	Slug           string
	Message        string
	RequesterID    string
	ChannelID      string // empty when the job has no public channel
	DeliveryTarget string
	State          JobState
	Result         int
	Response       string // set only once State is JobCompleted
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewJob builds a queued job. Length is validated by the caller.
func NewJob(slug, message, requesterID, channelID, target string, now time.Time) *Job {
	return &Job{
		Slug:           slug,
		Message:        message,
		RequesterID:    requesterID,
		ChannelID:      channelID,
		DeliveryTarget: target,
		State:          JobQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (j *Job) OwnedBy(requesterID string) bool {
	return j.RequesterID == requesterID
}

// MessageLen counts characters, not bytes.
func MessageLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TrimToTrailing keeps the last max characters of s.
func TrimToTrailing(s string, max int) string {
	if MessageLen(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-max:])
}

// IsDigits reports whether s is a non-empty run of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}
