// Package lifecycle holds the pure membership and status rules of an Activity.
// Every function returns a new value; inputs are never mutated.
package lifecycle

import (
	"errors"
	"pipi/backend/internal/models"

	"github.com/lib/pq"
)

var (
	// ErrCountMismatch means the participant list changed since it was read.
	ErrCountMismatch = errors.New("participant count changed")
	ErrClosed        = errors.New("activity is closed")
	ErrAlreadyMember = errors.New("user is already a member")
	ErrHost          = errors.New("host cannot join own activity")
)

// Status derives open/closed from the participant count. The host counts as one
// occupant on top of ParticipantID.
func Status(a models.Activity) models.Status {
	if len(a.ParticipantID)+1 < a.MaxPeopleNumber {
		return models.StatusOpen
	}
	return models.StatusClosed
}

// IsOpen is shorthand for Status(a) == StatusOpen.
func IsOpen(a models.Activity) bool {
	return Status(a) == models.StatusOpen
}

// AddingParticipant appends userID and starts their attendance flag at false.
// Duplicates are not checked here; callers pre-check with IsMember.
func AddingParticipant(a models.Activity, userID string) models.Activity {
	out := a.Clone()
	out.ParticipantID = append(out.ParticipantID, userID)
	out.Authentication[userID] = false
	return out
}

// RemoveParticipant drops every occurrence of userID and its attendance flag.
func RemoveParticipant(a models.Activity, userID string) models.Activity {
	out := a.Clone()
	kept := make(pq.StringArray, 0, len(out.ParticipantID))
	for _, id := range out.ParticipantID {
		if id != userID {
			kept = append(kept, id)
		}
	}
	out.ParticipantID = kept
	delete(out.Authentication, userID)
	return out
}

// UpdatingAuthentication sets the attendance flag of userID to done.
func UpdatingAuthentication(a models.Activity, userID string, done bool) models.Activity {
	out := a.Clone()
	out.Authentication[userID] = done
	return out
}

// IsMember reports whether userID is listed as a participant. The host is not.
func IsMember(a models.Activity, userID string) bool {
	for _, id := range a.ParticipantID {
		if id == userID {
			return true
		}
	}
	return false
}

// CanJoin reports whether userID may join: not the host, not a member, still open.
func CanJoin(a models.Activity, userID string) bool {
	return a.HostID != userID && !IsMember(a, userID) && IsOpen(a)
}

// ConditionalJoin is AddingParticipant guarded by the participant count the caller
// observed. It rejects the join when the list has moved, the activity is closed or
// the user is already in it.
func ConditionalJoin(a models.Activity, userID string, expectedCount int) (models.Activity, error) {
	switch {
	case a.HostID == userID:
		return a, ErrHost
	case IsMember(a, userID):
		return a, ErrAlreadyMember
	case len(a.ParticipantID) != expectedCount:
		return a, ErrCountMismatch
	case !IsOpen(a):
		return a, ErrClosed
	}
	return AddingParticipant(a, userID), nil
}

// Tally is the host-side attendance progress.
type Tally struct {
	Verified int `json:"verified"`
	Total    int `json:"total"`
}

// TallyOf counts true flags against all authentication entries.
func TallyOf(a models.Activity) Tally {
	t := Tally{Total: len(a.Authentication)}
	for _, done := range a.Authentication {
		if done {
			t.Verified++
		}
	}
	return t
}

// FilterOpen keeps open activities, optionally restricted to one category.
func FilterOpen(list []models.Activity, category *models.Category) []models.Activity {
	out := make([]models.Activity, 0, len(list))
	for _, a := range list {
		if !IsOpen(a) {
			continue
		}
		if category != nil && a.Category != *category {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Hosted returns the activities created by userID.
func Hosted(list []models.Activity, userID string) []models.Activity {
	out := make([]models.Activity, 0)
	for _, a := range list {
		if a.HostID == userID {
			out = append(out, a)
		}
	}
	return out
}

// Joined returns the activities userID participates in.
func Joined(list []models.Activity, userID string) []models.Activity {
	out := make([]models.Activity, 0)
	for _, a := range list {
		if IsMember(a, userID) {
			out = append(out, a)
		}
	}
	return out
}
