package engagement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/behzadon/podium/internal/domain"
	"github.com/behzadon/podium/internal/metrics"
	"github.com/behzadon/podium/internal/share"
	"github.com/behzadon/podium/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserStore interface {
	CurrentUser(ctx context.Context, userID string) (*domain.User, error)
	Refresh(ctx context.Context, userID string) (*domain.User, error)
	Invalidate(ctx context.Context, userID string)
	Resolve(ctx context.Context, requestedDate *int64, user *domain.User) store.Aggregate
}

type VoteSubmitter interface {
	SubmitVote(ctx context.Context, brandIDs [3]int) (*domain.Vote, error)
}

type Sharer interface {
	ShareAndVerify(ctx context.Context, req share.Request) (share.Outcome, error)
	Skip(ctx context.Context, req share.Request) share.Outcome
}

type VotePublisher interface {
	PublishVoteSubmitted(ctx context.Context, event domain.VoteSubmitted) error
}

// Deps are the collaborators shared by every flow.
type Deps struct {
	Store     UserStore
	Submitter VoteSubmitter
	Sharer    Sharer
	Publisher VotePublisher
	Logger    *zap.Logger
	Now       func() time.Time
}

// Flow is one user's pass through the daily vote. Network calls run without
// the lock held; the submitting flag keeps a second submit out meanwhile.
type Flow struct {
	userID string
	deps   Deps

	mu         sync.Mutex
	view       View
	user       *domain.User
	selection  []domain.BrandRef
	submitting bool
	lastSeen   time.Time
}

func NewFlow(userID string, deps Deps) *Flow {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Flow{
		userID:   userID,
		deps:     deps,
		view:     Loading{},
		lastSeen: deps.Now(),
	}
}

func (f *Flow) UserID() string { return f.userID }

func (f *Flow) Current() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *Flow) User() *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

// Load re-resolves the view from the shared user snapshot. justSubmitted is
// the one-shot success marker of the location.
func (f *Flow) Load(ctx context.Context, requestedDate *int64, justSubmitted bool) (View, error) {
	user, err := f.deps.Store.CurrentUser(ctx, f.userID)
	if err != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.setView(Loading{})
		return f.view, err
	}

	agg := f.deps.Store.Resolve(ctx, requestedDate, user)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = user
	f.setView(Resolve(Snapshot{
		User:          user,
		Vote:          agg.Vote,
		Loading:       agg.Loading,
		RequestedDate: requestedDate,
		JustSubmitted: justSubmitted,
		Selection:     f.selection,
	}))
	return f.view, nil
}

// Select keeps a partial or complete selection while the podium is shown.
func (f *Flow) Select(selection []domain.BrandRef) View {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.view.(Podium); !ok {
		return f.view
	}
	f.selection = clone(selection)
	f.setView(Podium{Selection: clone(selection)})
	return f.view
}

// Submit sends a display-ordered selection. Invalid selections and users who
// already voted never reach the backend.
func (f *Flow) Submit(ctx context.Context, selection []domain.BrandRef) (View, error) {
	f.mu.Lock()
	if f.submitting {
		v := f.view
		f.mu.Unlock()
		return v, domain.NewFlowError("submit vote", domain.ErrSubmitInFlight, "Your vote is already being submitted.", nil)
	}

	f.selection = clone(selection)
	podium, err := domain.ValidateSelection(selection)
	if err != nil {
		metrics.RecordSubmission("invalid")
		f.setView(Podium{Selection: clone(selection), Err: err})
		v := f.view
		f.mu.Unlock()
		return v, err
	}

	if f.hasVote() {
		metrics.RecordSubmission("already_voted")
		err := domain.NewFlowError("submit vote", domain.ErrConflict, "You already voted today.", nil)
		if f.user != nil {
			if _, ok := f.view.(Podium); ok {
				f.setView(Resolve(Snapshot{User: f.user, Vote: f.user.TodaysVote}))
			}
		}
		v := f.view
		f.mu.Unlock()
		return v, err
	}

	f.submitting = true
	f.mu.Unlock()

	vote, err := f.deps.Submitter.SubmitVote(ctx, podium.StorageIDs())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.RecordSubmission("conflict")
			return f.recoverConflict(ctx, err)
		}
		metrics.RecordSubmission("failed")
		f.mu.Lock()
		defer f.mu.Unlock()
		f.submitting = false
		f.setView(Podium{Selection: clone(f.selection), Err: err})
		return f.view, err
	}

	metrics.RecordSubmission("ok")
	f.deps.Store.Invalidate(ctx, f.userID)
	f.publishSubmitted(ctx, vote)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	f.selection = nil
	f.user = nil
	f.setView(Share{Brands: sharedBrands(vote, podium), VoteID: vote.ID, JustSubmitted: true})
	return f.view, nil
}

// sharedBrands prefers the brands of the stored vote, which carry the names
// and images a bare id selection lacks.
func sharedBrands(vote *domain.Vote, submitted domain.Podium) domain.Podium {
	stored := domain.DisplayOrder(vote)
	for _, b := range stored {
		if b.ID == 0 {
			return submitted
		}
	}
	return stored
}

// recoverConflict handles a vote cast from another session: the snapshot is
// refreshed and the flow falls back to the read-only views. Nothing is
// resubmitted.
func (f *Flow) recoverConflict(ctx context.Context, cause error) (View, error) {
	user, err := f.deps.Store.Refresh(ctx, f.userID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false

	if err != nil {
		f.deps.Logger.Warn("refresh after vote conflict failed", zap.String("user_id", f.userID), zap.Error(err))
		f.setView(Podium{Selection: clone(f.selection), Err: cause})
		return f.view, cause
	}

	f.user = user
	v := Resolve(Snapshot{User: user, Vote: user.TodaysVote})
	if _, ok := v.(Podium); ok {
		v = Podium{Selection: clone(f.selection), Err: cause}
	} else {
		f.selection = nil
	}
	f.setView(v)
	return f.view, cause
}

// ShareAndVerify runs the share flow for the vote shown in the share view.
func (f *Flow) ShareAndVerify(ctx context.Context) (View, error) {
	current, err := f.shareView()
	if err != nil {
		return f.Current(), err
	}

	out, err := f.deps.Sharer.ShareAndVerify(ctx, share.Request{
		UserID: f.userID,
		VoteID: current.VoteID,
		Brands: current.Brands,
	})
	if err != nil {
		return f.Current(), err
	}

	switch out.Status {
	case domain.ShareVerified:
		var points int
		user, rerr := f.deps.Store.Refresh(ctx, f.userID)
		if rerr != nil {
			f.deps.Logger.Warn("refresh after verified share failed", zap.String("user_id", f.userID), zap.Error(rerr))
		} else {
			points = user.Points
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if user != nil {
			f.user = user
		}
		f.setView(Congrats{
			Brands:        current.Brands,
			VoteID:        current.VoteID,
			PointsAwarded: out.PointsAwarded,
			AlreadyShared: out.AlreadyShared,
			Points:        points,
		})
		return f.view, nil

	case domain.ShareSkipped:
		f.mu.Lock()
		defer f.mu.Unlock()
		f.setView(Congrats{Brands: current.Brands, VoteID: current.VoteID, Skipped: true})
		return f.view, nil

	default:
		f.mu.Lock()
		defer f.mu.Unlock()
		f.setView(Share{
			Brands:        current.Brands,
			VoteID:        current.VoteID,
			JustSubmitted: current.JustSubmitted,
			Err:           out.Err,
		})
		return f.view, out.Err
	}
}

// Skip leaves the share view for the points-only acknowledgement. The vote
// stays shareable on a later visit.
func (f *Flow) Skip(ctx context.Context) (View, error) {
	current, err := f.shareView()
	if err != nil {
		return f.Current(), err
	}

	f.deps.Sharer.Skip(ctx, share.Request{UserID: f.userID, VoteID: current.VoteID, Brands: current.Brands})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.setView(Congrats{Brands: current.Brands, VoteID: current.VoteID, Skipped: true})
	return f.view, nil
}

func (f *Flow) shareView() (Share, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = f.deps.Now()
	s, ok := f.view.(Share)
	if !ok {
		return Share{}, domain.NewFlowError("share", domain.ErrConflict, "There is no vote to share.", domain.ErrNoActiveVote)
	}
	return s, nil
}

// hasVote must be called with mu held.
func (f *Flow) hasVote() bool {
	switch f.view.(type) {
	case Share, Congrats, AlreadyShared:
		return true
	}
	return f.user != nil && (f.user.HasVotedToday || f.user.TodaysVote != nil)
}

// setView must be called with mu held.
func (f *Flow) setView(v View) {
	f.view = v
	f.lastSeen = f.deps.Now()
	metrics.RecordView(string(v.State()))
}

func (f *Flow) idleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeen
}

func (f *Flow) busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

func (f *Flow) publishSubmitted(ctx context.Context, vote *domain.Vote) {
	if f.deps.Publisher == nil {
		return
	}
	event := domain.VoteSubmitted{
		EventID:   uuid.New(),
		UserID:    f.userID,
		Vote:      *vote,
		CreatedAt: f.deps.Now().UTC(),
	}
	if err := f.deps.Publisher.PublishVoteSubmitted(ctx, event); err != nil {
		f.deps.Logger.Error("failed to publish vote submitted event",
			zap.String("user_id", f.userID),
			zap.String("vote_id", vote.ID),
			zap.Error(err),
		)
	}
}

func clone(selection []domain.BrandRef) []domain.BrandRef {
	if len(selection) == 0 {
		return nil
	}
	return append([]domain.BrandRef(nil), selection...)
}
