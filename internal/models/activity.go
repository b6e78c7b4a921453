package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Category is the kind of meetup an Activity belongs to.
type Category string

const (
	CategoryMeal        Category = "meal"
	CategoryCafe        Category = "cafe"
	CategoryAlcohol     Category = "alcohol"
	CategorySport       Category = "sport"
	CategoryStudy       Category = "study"
	CategoryUnspecified Category = "unspecified"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryMeal,
	CategoryCafe,
	CategoryAlcohol,
	CategorySport,
	CategoryStudy,
	CategoryUnspecified,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the derived open/closed label of an Activity. It is computed from the
// participant count and capacity and is never stored.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Coordinates is a geographic point in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Authentication maps a user ID to whether their attendance was physically verified.
type Authentication map[string]bool

// Activity is a meetup record. The host occupies one capacity slot implicitly and is
// never listed in ParticipantID.
type Activity struct {
	// ID is the opaque unique identifier (UUID).
	ID string `gorm:"primaryKey" json:"id"`
	// HostID is the user who created the activity.
	HostID string `gorm:"type:text;not null;index" json:"host_id"`

	Title       string `gorm:"type:text;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	// MaxPeopleNumber is the capacity including the host.
	MaxPeopleNumber int `gorm:"not null" json:"max_people_number"`
	// ParticipantID holds the non-host members. Order carries no meaning.
	ParticipantID pq.StringArray `gorm:"type:text[]" json:"participant_id"`

	Category      Category  `gorm:"type:text;not null;index" json:"category"`
	StartDateTime time.Time `gorm:"not null" json:"start_date_time"`
	// EstimatedTime is the expected duration in minutes.
	EstimatedTime *int `json:"estimated_time,omitempty"`

	Coordinates Coordinates `gorm:"embedded;embeddedPrefix:coordinates_" json:"coordinates"`

	// Authentication holds the attendance-verified flag per participant.
	Authentication Authentication `gorm:"type:jsonb;serializer:json" json:"authentication"`
}

// BeforeCreate assigns a UUID when the activity has no ID yet.
func (a *Activity) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Normalize()
	return
}

// AfterFind replaces missing collections with empty ones.
func (a *Activity) AfterFind(tx *gorm.DB) (err error) {
	a.Normalize()
	return
}

// Normalize turns nil participant lists and authentication maps into empty values,
// so that records written without those fields read back the same as fresh ones.
func (a *Activity) Normalize() {
	if a.ParticipantID == nil {
		a.ParticipantID = pq.StringArray{}
	}
	if a.Authentication == nil {
		a.Authentication = Authentication{}
	}
}

// Clone returns a deep copy; the participant slice, authentication map and
// estimated time are not shared with a.
func (a Activity) Clone() Activity {
	out := a
	out.ParticipantID = make(pq.StringArray, len(a.ParticipantID), len(a.ParticipantID)+1)
	copy(out.ParticipantID, a.ParticipantID)
	out.Authentication = make(Authentication, len(a.Authentication)+1)
	for k, v := range a.Authentication {
		out.Authentication[k] = v
	}
	if a.EstimatedTime != nil {
		minutes := *a.EstimatedTime
		out.EstimatedTime = &minutes
	}
	return out
}

// ActivityPatch is a merge-patch over the top-level Activity columns. Nil fields are
// left untouched. Authentication, when set, replaces the whole map; use a single-key
// authentication write to change one participant's flag.
type ActivityPatch struct {
	Title           *string
	Description     *string
	MaxPeopleNumber *int
	ParticipantID   *[]string
	Category        *Category
	StartDateTime   *time.Time
	EstimatedTime   **int
	Coordinates     *Coordinates
	Authentication  *Authentication
}

// Columns returns the column/value map for the fields present in the patch.
func (p ActivityPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.MaxPeopleNumber != nil {
		cols["max_people_number"] = *p.MaxPeopleNumber
	}
	if p.ParticipantID != nil {
		cols["participant_id"] = pq.StringArray(*p.ParticipantID)
	}
	if p.Category != nil {
		cols["category"] = string(*p.Category)
	}
	if p.StartDateTime != nil {
		cols["start_date_time"] = *p.StartDateTime
	}
	if p.EstimatedTime != nil {
		cols["estimated_time"] = *p.EstimatedTime
	}
	if p.Coordinates != nil {
		cols["coordinates_latitude"] = p.Coordinates.Latitude
		cols["coordinates_longitude"] = p.Coordinates.Longitude
	}
	if p.Authentication != nil {
		cols["authentication"] = *p.Authentication
	}
	return cols
}

// Apply returns a copy of a with the patch fields applied. It mirrors what the
// store does with Columns and is used by in-memory backends.
func (p ActivityPatch) Apply(a Activity) Activity {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.MaxPeopleNumber != nil {
		a.MaxPeopleNumber = *p.MaxPeopleNumber
	}
	if p.ParticipantID != nil {
		a.ParticipantID = append(pq.StringArray{}, (*p.ParticipantID)...)
	}
	if p.Category != nil {
		a.Category = *p.Category
	}
	if p.StartDateTime != nil {
		a.StartDateTime = *p.StartDateTime
	}
	if p.EstimatedTime != nil {
		a.EstimatedTime = *p.EstimatedTime
	}
	if p.Coordinates != nil {
		a.Coordinates = *p.Coordinates
	}
	if p.Authentication != nil {
		auth := make(Authentication, len(*p.Authentication))
		for k, v := range *p.Authentication {
			auth[k] = v
		}
		a.Authentication = auth
	}
	return a
}

// IsEmpty reports whether the patch changes nothing.
func (p ActivityPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}
