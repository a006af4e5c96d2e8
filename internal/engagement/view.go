// Package engagement decides which of the daily vote views a user sees and
// drives the transitions between them.
package engagement

import (
	"github.com/behzadon/podium/internal/domain"
)

type State string

const (
	StateLoading       State = "LOADING"
	StatePodium        State = "PODIUM"
	StateShare         State = "SHARE"
	StateCongrats      State = "CONGRATS"
	StateAlreadyShared State = "ALREADY_SHARED"
	StateNotFound      State = "NOT_FOUND"
)

// View is one of Loading, Podium, Share, Congrats, AlreadyShared or NotFound.
// Each carries only the fields valid in that state.
type View interface {
	State() State
	view()
}

type Loading struct{}

// Podium asks for today's three brands. Selection survives failed submits.
type Podium struct {
	Selection []domain.BrandRef `json:"selection,omitempty"`
	Err       error             `json:"-"`
}

type Share struct {
	Brands        domain.Podium `json:"brands"`
	VoteID        string        `json:"voteId"`
	JustSubmitted bool          `json:"justSubmitted"`
	Err           error         `json:"-"`
}

// Congrats ends the flow. Points is the refreshed server balance, never a
// local sum; it is zero when the refresh failed or the share was skipped.
type Congrats struct {
	Brands        domain.Podium `json:"brands"`
	VoteID        string        `json:"voteId"`
	PointsAwarded int           `json:"pointsAwarded"`
	AlreadyShared bool          `json:"alreadyShared"`
	Skipped       bool          `json:"skipped"`
	Points        int           `json:"points"`
}

type AlreadyShared struct {
	Brands domain.Podium `json:"brands"`
	VoteID string        `json:"voteId"`
}

type NotFound struct {
	Date int64 `json:"date"`
}

func (Loading) State() State       { return StateLoading }
func (Podium) State() State        { return StatePodium }
func (Share) State() State         { return StateShare }
func (Congrats) State() State      { return StateCongrats }
func (AlreadyShared) State() State { return StateAlreadyShared }
func (NotFound) State() State      { return StateNotFound }

func (Loading) view()       {}
func (Podium) view()        {}
func (Share) view()         {}
func (Congrats) view()      {}
func (AlreadyShared) view() {}
func (NotFound) view()      {}

// ViewError returns the error a view surfaces, if any.
func ViewError(v View) error {
	switch v := v.(type) {
	case Podium:
		return v.Err
	case Share:
		return v.Err
	default:
		return nil
	}
}

// Snapshot is everything Resolve looks at.
type Snapshot struct {
	User          *domain.User
	Vote          *domain.Vote
	Loading       bool
	RequestedDate *int64
	JustSubmitted bool
	Selection     []domain.BrandRef
}

// Resolve maps a snapshot to its view. It has no side effects, so calling it
// again with the same snapshot yields the same view.
func Resolve(s Snapshot) View {
	if s.Loading || s.User == nil {
		return Loading{}
	}

	// Checked before any date handling: a shared day never re-enters the
	// share flow.
	if s.User.HasSharedToday {
		vote := s.Vote
		if vote == nil {
			vote = s.User.TodaysVote
		}
		av := AlreadyShared{Brands: domain.DisplayOrder(vote)}
		if vote != nil {
			av.VoteID = vote.ID
		}
		return av
	}

	hasVote := s.Vote != nil && s.Vote.ID != ""
	if s.RequestedDate != nil && !hasVote {
		return NotFound{Date: *s.RequestedDate}
	}
	if hasVote {
		return Share{
			Brands:        domain.DisplayOrder(s.Vote),
			VoteID:        s.Vote.ID,
			JustSubmitted: s.JustSubmitted,
		}
	}

	var selection []domain.BrandRef
	if len(s.Selection) > 0 {
		selection = append(selection, s.Selection...)
	}
	return Podium{Selection: selection}
}
