package model

import (
	"time"
)

type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionAccepted  ConnectionStatus = "accepted"
	ConnectionActive    ConnectionStatus = "active"
	ConnectionRejected  ConnectionStatus = "rejected"
	ConnectionCancelled ConnectionStatus = "cancelled"
)

var connectionTransitions = map[ConnectionStatus][]ConnectionStatus{
	ConnectionPending:  {ConnectionAccepted, ConnectionRejected, ConnectionCancelled},
	ConnectionAccepted: {ConnectionActive, ConnectionCancelled},
}

// CanTransitionTo reports whether the connection state machine has an edge
// from s to next.
func (s ConnectionStatus) CanTransitionTo(next ConnectionStatus) bool {
	for _, allowed := range connectionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the pair is free to request a new connection.
func (s ConnectionStatus) IsTerminal() bool {
	return s == ConnectionRejected || s == ConnectionCancelled
}

// IsSchedulable reports whether sessions may be scheduled under s.
func (s ConnectionStatus) IsSchedulable() bool {
	return s == ConnectionAccepted || s == ConnectionActive
}

func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionPending, ConnectionAccepted, ConnectionActive, ConnectionRejected, ConnectionCancelled:
		return true
	}
	return false
}

type Connection struct {
	ID               string           `db:"id" json:"id"`
	ElderID          string           `db:"elder_id" json:"elderId"`
	YoungID          string           `db:"young_id" json:"youngId"`
	Status           ConnectionStatus `db:"status" json:"status"`
	MatchScore       *float64         `db:"match_score" json:"matchScore,omitempty"`
	MatchExplanation *string          `db:"match_explanation" json:"matchExplanation,omitempty"`
	InitiatedBy      string           `db:"initiated_by" json:"initiatedBy"`
	TotalSessions    int              `db:"total_sessions" json:"totalSessions"`
	TotalHours       int              `db:"total_hours" json:"totalHours"`
	AverageRating    *float64         `db:"average_rating" json:"averageRating,omitempty"`
	ElderNotes       *string          `db:"elder_notes" json:"-"`
	YoungNotes       *string          `db:"young_notes" json:"-"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	AcceptedAt       *time.Time       `db:"accepted_at" json:"acceptedAt,omitempty"`
	FirstSessionAt   *time.Time       `db:"first_session_at" json:"firstSessionAt,omitempty"`
	LastActivityAt   *time.Time       `db:"last_activity_at" json:"lastActivityAt,omitempty"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}

// HasParty reports whether userID is the elder or the young side.
func (c *Connection) HasParty(userID string) bool {
	return userID != "" && (c.ElderID == userID || c.YoungID == userID)
}

// Counterpart returns the other side of the connection for userID.
func (c *Connection) Counterpart(userID string) string {
	if c.ElderID == userID {
		return c.YoungID
	}
	return c.ElderID
}

// Recipient is the party that did not initiate the request.
func (c *Connection) Recipient() string {
	return c.Counterpart(c.InitiatedBy)
}

type CreateConnectionParams struct {
	ElderID          string
	YoungID          string
	InitiatedBy      string
	MatchScore       *float64
	MatchExplanation *string
}
