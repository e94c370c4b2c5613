package models

import (
	"errors"
	"time"
)

// FeedbackAction represents allowed session feedback actions.
type FeedbackAction string

const (
	ActionLike       FeedbackAction = "like"
	ActionUnlike     FeedbackAction = "unlike"
	ActionOpen       FeedbackAction = "open"
	ActionAddToRoute FeedbackAction = "add_to_route"
	ActionDwell      FeedbackAction = "dwell"
)

// FeedbackSignal is one recorded interaction within a session.
type FeedbackSignal struct {
	SessionID string         `json:"session_id"`
	PlaceID   int64          `json:"place_id"`
	Action    FeedbackAction `json:"action"`
	DwellMs   *int64         `json:"dwell_ms,omitempty"`
	Step      *int           `json:"step,omitempty"` // rail index the card was on
	At        time.Time      `json:"at"`
}

// Validate basic constraints. Keep it simple.
func (f *FeedbackSignal) Validate() error {
	if f.SessionID == "" {
		return errors.New("session id required")
	}
	if f.PlaceID <= 0 {
		return errors.New("invalid place id")
	}
	switch f.Action {
	case ActionLike, ActionUnlike, ActionOpen, ActionAddToRoute, ActionDwell:
		// ok
	default:
		return errors.New("invalid feedback action")
	}
	if f.Action == ActionDwell && (f.DwellMs == nil || *f.DwellMs < 0) {
		return errors.New("dwell action requires non-negative dwell_ms")
	}
	return nil
}
