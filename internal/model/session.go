package model

import (
	"time"
)

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionMissed     SessionStatus = "missed"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled:  {SessionInProgress, SessionCancelled, SessionMissed},
	SessionInProgress: {SessionCompleted},
}

func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session only accepts post-hoc ratings.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionMissed
}

type VideoStatus string

const (
	VideoNotStarted VideoStatus = "not_started"
	VideoConnecting VideoStatus = "connecting"
	VideoActive     VideoStatus = "active"
	VideoEnded      VideoStatus = "ended"
	VideoFailed     VideoStatus = "failed"
)

var videoTransitions = map[VideoStatus][]VideoStatus{
	VideoNotStarted: {VideoConnecting},
	VideoConnecting: {VideoActive, VideoFailed},
	VideoActive:     {VideoEnded, VideoFailed},
}

func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	for _, allowed := range videoTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsLive reports whether a call has been requested and not yet finished.
func (s VideoStatus) IsLive() bool {
	return s == VideoConnecting || s == VideoActive
}

type Session struct {
	ID                   string        `db:"id" json:"id"`
	ConnectionID         string        `db:"connection_id" json:"connectionId"`
	ActivityType         ActivityType  `db:"activity_type" json:"activityType"`
	ActivityTitle        *string       `db:"activity_title" json:"activityTitle,omitempty"`
	ActivityDescription  *string       `db:"activity_description" json:"activityDescription,omitempty"`
	Status               SessionStatus `db:"status" json:"status"`
	ScheduledAt          time.Time     `db:"scheduled_at" json:"scheduledAt"`
	StartedAt            *time.Time    `db:"started_at" json:"startedAt,omitempty"`
	EndedAt              *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	DurationMinutes      *int          `db:"duration_minutes" json:"durationMinutes,omitempty"`
	VideoStatus          VideoStatus   `db:"video_status" json:"videoStatus"`
	VideoRoomID          *string       `db:"video_room_id" json:"videoRoomId,omitempty"`
	VideoRequestedBy     *string       `db:"video_requested_by" json:"videoRequestedBy,omitempty"`
	VideoRequestedAt     *time.Time    `db:"video_requested_at" json:"videoRequestedAt,omitempty"`
	VideoStartedAt       *time.Time    `db:"video_started_at" json:"videoStartedAt,omitempty"`
	VideoEndedAt         *time.Time    `db:"video_ended_at" json:"videoEndedAt,omitempty"`
	VideoDurationSeconds *int          `db:"video_duration_seconds" json:"videoDurationSeconds,omitempty"`
	VideoQuality         *VideoQuality `db:"video_quality" json:"videoQuality,omitempty"`
	ChatEnabled          bool          `db:"chat_enabled" json:"chatEnabled"`
	ElderRating          *int          `db:"elder_rating" json:"elderRating,omitempty"`
	ElderFeedback        *string       `db:"elder_feedback" json:"elderFeedback,omitempty"`
	YoungRating          *int          `db:"young_rating" json:"youngRating,omitempty"`
	YoungFeedback        *string       `db:"young_feedback" json:"youngFeedback,omitempty"`
	CreatedAt            time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updatedAt"`
}

// CanStartVideo mirrors the invariant that a call only starts inside a
// running session.
func (s *Session) CanStartVideo() bool {
	return s.Status == SessionInProgress && s.VideoStatus == VideoNotStarted
}

type CreateSessionParams struct {
	ConnectionID        string
	ActivityType        ActivityType
	ActivityTitle       *string
	ActivityDescription *string
	ScheduledAt         time.Time
	ChatEnabled         bool
}

// RatingSide selects which party's rating columns a write touches.
type RatingSide string

const (
	RatingSideElder RatingSide = "elder"
	RatingSideYoung RatingSide = "young"
)

type Rating struct {
	Side     RatingSide
	Score    int
	Feedback *string
}

type CompleteSessionParams struct {
	EndedAt         time.Time
	DurationMinutes int
	VideoQuality    *VideoQuality
	Rating          *Rating
}

type VideoTransitionParams struct {
	At          time.Time
	RoomID      *string
	RequestedBy *string
	Quality     *VideoQuality
}
