package model

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// User is the read model of a registered user as exposed by the user
// directory. Registration and credentials live elsewhere; this service only
// reads these rows.
type User struct {
	ID           string           `db:"id" json:"id"`
	UserType     UserType         `db:"user_type" json:"userType"`
	FullName     string           `db:"full_name" json:"fullName"`
	Bio          *string          `db:"bio" json:"bio,omitempty"`
	BirthDate    *time.Time       `db:"birth_date" json:"birthDate,omitempty"`
	Availability *json.RawMessage `db:"availability" json:"availability,omitempty"`
	Interests    pq.StringArray   `db:"interests" json:"interests"`
	IsActive     bool             `db:"is_active" json:"isActive"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updatedAt"`
}

type Interest struct {
	ID       int              `db:"id" json:"id" yaml:"-"`
	Name     string           `db:"name" json:"name" yaml:"name"`
	Category InterestCategory `db:"category" json:"category" yaml:"category"`
	IconURL  *string          `db:"icon_url" json:"iconUrl,omitempty" yaml:"iconUrl,omitempty"`
	IsActive bool             `db:"is_active" json:"isActive" yaml:"-"`
}
