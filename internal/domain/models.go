package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BrandRef struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
	Handle   string `json:"handle,omitempty"`
}

// Vote is a submitted podium. Brand1, Brand2 and Brand3 are first, second and
// third place.
type Vote struct {
	ID     string   `json:"id"`
	Date   int64    `json:"date"`
	Brand1 BrandRef `json:"brand1"`
	Brand2 BrandRef `json:"brand2"`
	Brand3 BrandRef `json:"brand3"`
}

type User struct {
	ID             string `json:"id"`
	Points         int    `json:"points"`
	HasVotedToday  bool   `json:"hasVotedToday"`
	HasSharedToday bool   `json:"hasSharedToday"`
	TodaysVote     *Vote  `json:"todaysVote"`
}

type ShareVerification struct {
	CastRef       string `json:"castHash"`
	VoteID        string `json:"voteId"`
	Verified      bool   `json:"verified"`
	PointsAwarded int    `json:"pointsAwarded"`
	AlreadyShared bool   `json:"alreadyShared"`
}

// Podium holds three brands in display order: second, first, third.
type Podium [3]BrandRef

// DisplayOrder rearranges a stored vote into the center-weighted podium.
func DisplayOrder(v *Vote) Podium {
	if v == nil {
		return Podium{}
	}
	return Podium{v.Brand2, v.Brand1, v.Brand3}
}

// StorageIDs returns brand ids in first, second, third order.
func (p Podium) StorageIDs() [3]int {
	return [3]int{p[1].ID, p[0].ID, p[2].ID}
}

func (p Podium) First() BrandRef  { return p[1] }
func (p Podium) Second() BrandRef { return p[0] }
func (p Podium) Third() BrandRef  { return p[2] }

// ValidateSelection checks a display-ordered selection and returns it as a
// podium. It never touches the network.
func ValidateSelection(selection []BrandRef) (Podium, error) {
	var p Podium
	if len(selection) != len(p) {
		return p, NewFlowError("validate selection", ErrValidation,
			fmt.Sprintf("Select exactly 3 brands (got %d).", len(selection)), nil)
	}
	seen := make(map[int]struct{}, len(selection))
	for i, b := range selection {
		if b.ID <= 0 {
			return p, NewFlowError("validate selection", ErrValidation,
				"Every podium place needs a brand.", nil)
		}
		if _, ok := seen[b.ID]; ok {
			return p, NewFlowError("validate selection", ErrValidation,
				"A brand can only take one podium place.", nil)
		}
		seen[b.ID] = struct{}{}
		p[i] = b
	}
	return p, nil
}

// DayStart returns the unix timestamp of the UTC calendar day containing t.
func DayStart(t time.Time) int64 {
	return t.UTC().Truncate(24 * time.Hour).Unix()
}

type ShareOutcomeStatus string

const (
	ShareVerified ShareOutcomeStatus = "verified"
	ShareFailed   ShareOutcomeStatus = "failed"
	ShareSkipped  ShareOutcomeStatus = "skipped"
)

// ShareAttempt is one journaled run of the share flow.
type ShareAttempt struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	UserID        string             `json:"userId" db:"user_id"`
	VoteID        string             `json:"voteId" db:"vote_id"`
	PostRef       string             `json:"postRef,omitempty" db:"post_ref"`
	Status        ShareOutcomeStatus `json:"status" db:"status"`
	PointsAwarded int                `json:"pointsAwarded" db:"points_awarded"`
	AlreadyShared bool               `json:"alreadyShared" db:"already_shared"`
	Message       string             `json:"message,omitempty" db:"message"`
	CreatedAt     time.Time          `json:"createdAt" db:"created_at"`
}

type VoteSubmitted struct {
	EventID   uuid.UUID `json:"eventId"`
	UserID    string    `json:"userId"`
	Vote      Vote      `json:"vote"`
	CreatedAt time.Time `json:"createdAt"`
}

type ShareCompleted struct {
	EventID       uuid.UUID          `json:"eventId"`
	UserID        string             `json:"userId"`
	VoteID        string             `json:"voteId"`
	Status        ShareOutcomeStatus `json:"status"`
	PointsAwarded int                `json:"pointsAwarded"`
	AlreadyShared bool               `json:"alreadyShared"`
	CreatedAt     time.Time          `json:"createdAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	PodiumSize          = 3
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)
