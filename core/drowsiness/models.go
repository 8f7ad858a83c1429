package drowsiness

import (
	"time"

	"github.com/volatiletech/null/v8"
)

type State string

// Session states
const (
	StateCreated  State = "created"
	StatePaired   State = "paired"
	StateFinished State = "finished"
)

type Session struct {
	ID         string    `json:"session_id"`
	StudentUID string    `json:"student_uid"`
	VideoID    int       `json:"video_id"`
	AuthCode   string    `json:"-"`
	Verified   bool      `json:"paired"`
	VerifiedAt null.Time `json:"verified_at"` // UTC
	FinishedAt null.Time `json:"finished_at"` // UTC
	CreatedAt  time.Time `json:"created_at"`  // UTC
}

func (s Session) State() State {
	switch {
	case s.FinishedAt.Valid:
		return StateFinished
	case s.Verified:
		return StatePaired
	default:
		return StateCreated
	}
}

// Pairing is the session record shared with the wearable through the real-time store.
type Pairing struct {
	SessionID  string `json:"session_id"`
	StudentUID string `json:"student_uid"`
	VideoID    int    `json:"video_id"`
	AuthCode   string `json:"auth_code"`
	Paired     bool   `json:"paired"`
	Stop       bool   `json:"stop"`
}

// Score is one persisted fatigue prediction. Timestamp is in minutes from the session start.
type Score struct {
	VideoID         int     `json:"-"`
	StudentUID      string  `json:"-"`
	Timestamp       int     `json:"timestamp"`
	DrowsinessScore float64 `json:"drowsiness_score"`
}

// Analysis is the completed scoring pass of a (video, student) pair.
type Analysis struct {
	VideoID    int
	StudentUID string
	SessionID  string
	FinalScore float64
	Scores     []Score
	CreatedAt  time.Time // UTC
}

// ScoredEvent is published once an analysis is committed.
type ScoredEvent struct {
	SessionID  string  `json:"session_id"`
	VideoID    int     `json:"video_id"`
	StudentUID string  `json:"student_uid"`
	FinalScore float64 `json:"final_score"`
	Segments   int     `json:"segments"`
}

type Level struct {
	T     int     `json:"t"` // seconds
	Value float64 `json:"value"`
}

type Prediction struct {
	DrowsinessLevel float64 `json:"drowsiness_level"`
	Segments        int     `json:"segments"`
	Windows         int     `json:"windows"`
}

type FinishResult struct {
	SessionID  string     `json:"session_id"`
	Prediction Prediction `json:"prediction"`
	Scores     []Score    `json:"scores"`
}

type StartSession struct {
	VideoID int `json:"video_id" validate:"required,min=1"`
}

type VerifyCode struct {
	Code string `json:"code" validate:"required,authcode"`
}

type FinishSession struct {
	SessionID string `json:"session_id" validate:"required"`
}
