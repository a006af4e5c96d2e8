package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/behzadon/podium/internal/domain"
	"github.com/behzadon/podium/internal/gateway"
	"github.com/behzadon/podium/internal/host"
	"github.com/behzadon/podium/internal/share"
	"github.com/behzadon/podium/internal/storage/events"
	"github.com/behzadon/podium/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Unix(1700000000, 0)

// memCache is an in-memory user cache that counts invalidations.
type memCache struct {
	mu            sync.Mutex
	users         map[string]domain.User
	generations   map[string]int64
	invalidations int
}

func (c *memCache) GetUser(_ context.Context, userID string) (*domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (c *memCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID], nil
}

func (c *memCache) SetUser(_ context.Context, user *domain.User, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[user.ID] != generation {
		return domain.ErrStaleUser
	}
	c.users[user.ID] = *user
	return nil
}

func (c *memCache) InvalidateUser(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	delete(c.users, userID)
	c.invalidations++
	return nil
}

func (c *memCache) invalidated() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

type harness struct {
	gw        *gateway.MockGateway
	composer  *host.MockComposer
	publisher *events.MockPublisher
	cache     *memCache
	deps      Deps
}

func newHarness() *harness {
	h := &harness{
		gw:        new(gateway.MockGateway),
		composer:  new(host.MockComposer),
		publisher: new(events.MockPublisher),
		cache:     &memCache{users: make(map[string]domain.User), generations: make(map[string]int64)},
	}
	logger := zap.NewNop()
	h.deps = Deps{
		Store:     store.New(h.gw, h.cache, logger),
		Submitter: h.gw,
		Sharer:    share.NewCoordinator(h.composer, h.gw, nil, nil, "https://app.example", logger),
		Publisher: h.publisher,
		Logger:    logger,
		Now:       func() time.Time { return fixedNow },
	}
	return h
}

func (h *harness) flow() *Flow {
	return NewFlow("42", h.deps)
}

func newUser() *domain.User {
	return &domain.User{ID: "42", Points: 10}
}

func votedUser() *domain.User {
	return &domain.User{ID: "42", Points: 10, HasVotedToday: true, TodaysVote: todaysVote()}
}

func TestSubmit_InvalidSelectionNeverReachesBackend(t *testing.T) {
	tests := []struct {
		name      string
		selection []domain.BrandRef
	}{
		{"empty", nil},
		{"one", []domain.BrandRef{brandA}},
		{"two", []domain.BrandRef{brandA, brandB}},
		{"four", []domain.BrandRef{brandA, brandB, brandC, {ID: 4, Name: "D"}}},
		{"duplicate", []domain.BrandRef{brandA, brandB, brandA}},
		{"all same", []domain.BrandRef{brandC, brandC, brandC}},
		{"missing brand", []domain.BrandRef{brandA, {}, brandC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.gw.On("FetchCurrentUser", mock.Anything).Return(newUser(), nil)
			f := h.flow()
			_, err := f.Load(context.Background(), nil, false)
			require.NoError(t, err)

			v, err := f.Submit(context.Background(), tt.selection)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, domain.AffordanceRetry, domain.AffordanceFor(err))

			p, ok := v.(Podium)
			require.True(t, ok)
			assert.Equal(t, clone(tt.selection), p.Selection)
			assert.Equal(t, err, ViewError(v))

			h.gw.AssertNotCalled(t, "SubmitVote", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitMapsDisplayOrderToStorageOrder(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(newUser(), nil).Once()
	h.gw.On("SubmitVote", mock.Anything, [3]int{1, 2, 3}).Return(todaysVote(), nil)
	h.publisher.On("PublishVoteSubmitted", mock.Anything, mock.MatchedBy(func(e domain.VoteSubmitted) bool {
		return e.UserID == "42" && e.Vote.ID == "v1"
	})).Return(nil)

	f := h.flow()
	v, err := f.Load(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatePodium, v.State())

	v, err = f.Submit(ctx, []domain.BrandRef{brandB, brandA, brandC})
	require.NoError(t, err)

	s, ok := v.(Share)
	require.True(t, ok)
	assert.Equal(t, "v1", s.VoteID)
	assert.Equal(t, domain.Podium{brandB, brandA, brandC}, s.Brands)
	assert.True(t, s.JustSubmitted)
	assert.Equal(t, v, f.Current())

	assert.Equal(t, 1, h.cache.invalidated())
	h.gw.AssertExpectations(t)
	h.publisher.AssertExpectations(t)
}

func TestSubmit_ShareCarriesServerVoteID(t *testing.T) {
	for _, id := range []string{"v1", "b6f1c2", "2023-11-14:42"} {
		h := newHarness()
		h.gw.On("SubmitVote", mock.Anything, mock.Anything).Return(&domain.Vote{ID: id}, nil)
		h.publisher.On("PublishVoteSubmitted", mock.Anything, mock.Anything).Return(nil)

		v, err := h.flow().Submit(context.Background(), []domain.BrandRef{brandA, brandB, brandC})
		require.NoError(t, err)
		require.Equal(t, StateShare, v.State())
		assert.Equal(t, id, v.(Share).VoteID)
	}
}

func TestSubmit_IDOnlySelectionSharesStoredBrands(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.gw.On("SubmitVote", mock.Anything, [3]int{1, 2, 3}).Return(todaysVote(), nil)
	h.publisher.On("PublishVoteSubmitted", mock.Anything, mock.Anything).Return(nil)
	h.composer.On("ComposePost", mock.Anything, "My podium for today:\n\n🥈 B\n🥇 A\n🥉 C",
		[]string{"https://app.example/embeds/podium/v1"}).Return("", nil)

	f := h.flow()
	v, err := f.Submit(ctx, []domain.BrandRef{{ID: 2}, {ID: 1}, {ID: 3}})
	require.NoError(t, err)

	s, ok := v.(Share)
	require.True(t, ok)
	assert.Equal(t, domain.Podium{brandB, brandA, brandC}, s.Brands)

	_, err = f.ShareAndVerify(ctx)
	require.Error(t, err)
	h.composer.AssertExpectations(t)
}

func TestSubmit_TransientFailureKeepsSelection(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	selection := []domain.BrandRef{brandB, brandA, brandC}

	h.gw.On("SubmitVote", mock.Anything, [3]int{1, 2, 3}).
		Return(nil, domain.NewFlowError("SubmitVote", domain.ErrTransient, "", errors.New("503"))).Once()

	f := h.flow()
	v, err := f.Submit(ctx, selection)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, domain.AffordanceRetry, domain.AffordanceFor(err))
	require.Equal(t, StatePodium, v.State())
	assert.Equal(t, selection, v.(Podium).Selection)
	assert.Zero(t, h.cache.invalidated())

	h.gw.On("SubmitVote", mock.Anything, [3]int{1, 2, 3}).Return(todaysVote(), nil).Once()
	h.publisher.On("PublishVoteSubmitted", mock.Anything, mock.Anything).Return(nil)

	v, err = f.Submit(ctx, v.(Podium).Selection)
	require.NoError(t, err)
	assert.Equal(t, StateShare, v.State())
	h.gw.AssertNumberOfCalls(t, "SubmitVote", 2)
}

func TestSubmit_ConflictFallsBackToReadOnlyView(t *testing.T) {
	tests := []struct {
		name     string
		refresh  *domain.User
		expected State
	}{
		{
			name:     "voted elsewhere",
			refresh:  votedUser(),
			expected: StateShare,
		},
		{
			name: "voted and shared elsewhere",
			refresh: &domain.User{
				ID: "42", Points: 13, HasVotedToday: true, HasSharedToday: true, TodaysVote: todaysVote(),
			},
			expected: StateAlreadyShared,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			h.gw.On("FetchCurrentUser", mock.Anything).Return(newUser(), nil).Once()
			h.gw.On("SubmitVote", mock.Anything, mock.Anything).
				Return(nil, domain.NewFlowError("SubmitVote", domain.ErrConflict, "already voted today", nil)).Once()
			h.gw.On("FetchCurrentUser", mock.Anything).Return(tt.refresh, nil).Once()

			f := h.flow()
			_, err := f.Load(ctx, nil, false)
			require.NoError(t, err)

			v, err := f.Submit(ctx, []domain.BrandRef{brandB, brandA, brandC})
			assert.ErrorIs(t, err, domain.ErrConflict)
			assert.Equal(t, domain.AffordanceNavigate, domain.AffordanceFor(err))
			assert.Equal(t, tt.expected, v.State())
			assert.Equal(t, 1, h.cache.invalidated())

			// A second attempt is rejected locally.
			_, err = f.Submit(ctx, []domain.BrandRef{brandB, brandA, brandC})
			assert.ErrorIs(t, err, domain.ErrConflict)
			h.gw.AssertNumberOfCalls(t, "SubmitVote", 1)
		})
	}
}

func TestSubmit_AlreadyVotedNeverReachesBackend(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(votedUser(), nil)

	f := h.flow()
	v, err := f.Load(ctx, datePtr(1699920000), false)
	require.NoError(t, err)
	require.Equal(t, StateShare, v.State())

	v, err = f.Submit(ctx, []domain.BrandRef{brandA, brandB, brandC})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, StateShare, v.State())
	h.gw.AssertNotCalled(t, "SubmitVote", mock.Anything, mock.Anything)
}

func TestSubmit_RejectsWhileInFlight(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	h.gw.On("SubmitVote", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(todaysVote(), nil).Once()
	h.publisher.On("PublishVoteSubmitted", mock.Anything, mock.Anything).Return(nil)

	f := h.flow()
	var wg sync.WaitGroup
	wg.Add(1)
	var first View
	go func() {
		defer wg.Done()
		first, _ = f.Submit(ctx, []domain.BrandRef{brandA, brandB, brandC})
	}()

	<-started
	_, err := f.Submit(ctx, []domain.BrandRef{brandA, brandB, brandC})
	assert.ErrorIs(t, err, domain.ErrSubmitInFlight)

	close(release)
	wg.Wait()
	assert.Equal(t, StateShare, first.State())
	h.gw.AssertNumberOfCalls(t, "SubmitVote", 1)
}

func TestEmbeddedVoteSkipsFallbackFetch(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(votedUser(), nil)

	v, err := h.flow().Load(context.Background(), datePtr(1699920000), false)
	require.NoError(t, err)

	assert.Equal(t, Share{Brands: domain.Podium{brandB, brandA, brandC}, VoteID: "v1"}, v)
	h.gw.AssertNotCalled(t, "FetchVoteByDate", mock.Anything, mock.Anything)
}

func TestMissingVoteForDateIsNotFound(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(newUser(), nil)
	h.gw.On("FetchVoteByDate", mock.Anything, int64(1700000000)).
		Return(nil, domain.NewFlowError("FetchVoteByDate", domain.ErrNotFound, "", nil))

	v, err := h.flow().Load(context.Background(), datePtr(1700000000), false)
	require.NoError(t, err)
	assert.Equal(t, NotFound{Date: 1700000000}, v)
	h.gw.AssertExpectations(t)
}

func TestLoad_FallbackVoteForPastDate(t *testing.T) {
	h := newHarness()
	past := &domain.Vote{ID: "v0", Date: 1699833600, Brand1: brandC, Brand2: brandA, Brand3: brandB}
	h.gw.On("FetchCurrentUser", mock.Anything).Return(newUser(), nil)
	h.gw.On("FetchVoteByDate", mock.Anything, int64(1699833600)).Return(past, nil)

	v, err := h.flow().Load(context.Background(), datePtr(1699833600), false)
	require.NoError(t, err)
	assert.Equal(t, Share{Brands: domain.Podium{brandA, brandC, brandB}, VoteID: "v0"}, v)
}

func TestLoad_UserFailureStaysLoading(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).
		Return(nil, domain.NewFlowError("FetchCurrentUser", domain.ErrTransient, "", errors.New("eof")))

	v, err := h.flow().Load(context.Background(), nil, false)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, Loading{}, v)
}

func TestLoad_SuccessMarkerOnlyAffectsThatLoad(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(votedUser(), nil)
	f := h.flow()

	v, err := f.Load(context.Background(), datePtr(1699920000), true)
	require.NoError(t, err)
	assert.True(t, v.(Share).JustSubmitted)

	v, err = f.Load(context.Background(), datePtr(1699920000), false)
	require.NoError(t, err)
	assert.False(t, v.(Share).JustSubmitted)
}

func sharingFlow(t *testing.T, h *harness) *Flow {
	t.Helper()
	f := h.flow()
	v, err := f.Load(context.Background(), datePtr(1699920000), false)
	require.NoError(t, err)
	require.Equal(t, StateShare, v.State())
	return f
}

func TestNoPostReferenceStaysInShare(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(votedUser(), nil)
	h.composer.On("ComposePost", mock.Anything, mock.Anything, mock.Anything).Return("", nil)

	f := sharingFlow(t, h)
	v, err := f.ShareAndVerify(context.Background())
	require.Error(t, err)
	assert.Equal(t, "share was not completed", domain.UserMessage(err))

	s, ok := v.(Share)
	require.True(t, ok)
	assert.Equal(t, "v1", s.VoteID)
	assert.Equal(t, domain.Podium{brandB, brandA, brandC}, s.Brands)
	assert.Equal(t, err, s.Err)
	h.gw.AssertNotCalled(t, "VerifyShare", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifiedShareShowsRefreshedPoints(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(votedUser(), nil).Once()
	h.composer.On("ComposePost", mock.Anything, mock.Anything, mock.Anything).Return("0xabc", nil)
	h.gw.On("VerifyShare", mock.Anything, "0xabc", "v1").
		Return(&domain.ShareVerification{Verified: true, PointsAwarded: 3}, nil)
	h.gw.On("FetchCurrentUser", mock.Anything).Return(&domain.User{
		ID: "42", Points: 13, HasVotedToday: true, HasSharedToday: true, TodaysVote: todaysVote(),
	}, nil).Once()

	f := sharingFlow(t, h)
	v, err := f.ShareAndVerify(ctx)
	require.NoError(t, err)

	c, ok := v.(Congrats)
	require.True(t, ok)
	assert.Equal(t, 3, c.PointsAwarded)
	assert.Equal(t, 13, c.Points)
	assert.False(t, c.Skipped)
	assert.Equal(t, 1, h.cache.invalidated())
	h.gw.AssertNumberOfCalls(t, "FetchCurrentUser", 2)

	// The next visit sees the refreshed snapshot.
	v, err = f.Load(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StateAlreadyShared, v.State())
}

func TestVerificationIsIdempotentAcrossSessions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sharedUser := &domain.User{ID: "42", Points: 13, HasVotedToday: true, HasSharedToday: true, TodaysVote: todaysVote()}

	h.gw.On("FetchCurrentUser", mock.Anything).Return(votedUser(), nil).Once()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(sharedUser, nil)
	h.composer.On("ComposePost", mock.Anything, mock.Anything, mock.Anything).Return("0xabc", nil).Once()
	h.composer.On("ComposePost", mock.Anything, mock.Anything, mock.Anything).Return("0xdef", nil).Once()
	h.gw.On("VerifyShare", mock.Anything, "0xabc", "v1").
		Return(&domain.ShareVerification{Verified: true, PointsAwarded: 3}, nil)
	h.gw.On("VerifyShare", mock.Anything, "0xdef", "v1").
		Return(&domain.ShareVerification{Verified: true, AlreadyShared: true}, nil)

	phone := sharingFlow(t, h)
	laptop := sharingFlow(t, h)

	v1, err := phone.ShareAndVerify(ctx)
	require.NoError(t, err)
	v2, err := laptop.ShareAndVerify(ctx)
	require.NoError(t, err)

	c1, ok := v1.(Congrats)
	require.True(t, ok)
	c2, ok := v2.(Congrats)
	require.True(t, ok)

	assert.False(t, c1.AlreadyShared)
	assert.True(t, c2.AlreadyShared)
	assert.Equal(t, 13, c1.Points)
	assert.Equal(t, 13, c2.Points, "points come from the server, not from adding awards")

	h.gw.AssertNumberOfCalls(t, "VerifyShare", 2)
	assert.Equal(t, 2, h.cache.invalidated())
}

func TestShareAndVerify_CancelledComposerEndsWithoutPoints(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(votedUser(), nil)
	h.composer.On("ComposePost", mock.Anything, mock.Anything, mock.Anything).
		Return("", domain.NewFlowError("compose post", domain.ErrCancelled, "", nil))

	f := sharingFlow(t, h)
	v, err := f.ShareAndVerify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Congrats{Brands: domain.Podium{brandB, brandA, brandC}, VoteID: "v1", Skipped: true}, v)
	h.gw.AssertNotCalled(t, "VerifyShare", mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, h.cache.invalidated())
}

func TestSkip(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(votedUser(), nil)

	f := sharingFlow(t, h)
	v, err := f.Skip(context.Background())
	require.NoError(t, err)

	c, ok := v.(Congrats)
	require.True(t, ok)
	assert.True(t, c.Skipped)
	assert.Zero(t, c.PointsAwarded)
	h.composer.AssertNotCalled(t, "ComposePost", mock.Anything, mock.Anything, mock.Anything)

	// Skipping is not sharing: a later visit can still share.
	v, err = f.Load(context.Background(), datePtr(1699920000), false)
	require.NoError(t, err)
	assert.Equal(t, StateShare, v.State())
}

func TestShareActionsRequireShareView(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(newUser(), nil)
	f := h.flow()
	_, err := f.Load(context.Background(), nil, false)
	require.NoError(t, err)

	v, err := f.ShareAndVerify(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoActiveVote)
	assert.Equal(t, StatePodium, v.State())

	_, err = f.Skip(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoActiveVote)
	h.composer.AssertNotCalled(t, "ComposePost", mock.Anything, mock.Anything, mock.Anything)
}

func TestSelect(t *testing.T) {
	h := newHarness()
	h.gw.On("FetchCurrentUser", mock.Anything).Return(newUser(), nil)
	f := h.flow()
	_, err := f.Load(context.Background(), nil, false)
	require.NoError(t, err)

	v := f.Select([]domain.BrandRef{brandB, brandA})
	assert.Equal(t, Podium{Selection: []domain.BrandRef{brandB, brandA}}, v)

	// A reload keeps the selection.
	v, err = f.Load(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, Podium{Selection: []domain.BrandRef{brandB, brandA}}, v)
}

func TestRegistry(t *testing.T) {
	h := newHarness()
	now := fixedNow
	h.deps.Now = func() time.Time { return now }

	r := NewRegistry(h.deps, time.Minute)
	a := r.Get("42")
	assert.Same(t, a, r.Get("42"))
	b := r.Get("7")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())

	assert.Zero(t, r.Sweep(now.Add(30*time.Second)))
	assert.Equal(t, 2, r.Sweep(now.Add(2*time.Minute)))
	assert.Zero(t, r.Len())
	assert.NotSame(t, a, r.Get("42"))
}
