// Package store reconciles the vote embedded in the user snapshot with a vote
// fetched by date into one canonical value.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/behzadon/podium/internal/domain"
	"github.com/behzadon/podium/internal/gateway"
	"go.uber.org/zap"
)

// Aggregate is the canonical vote for one view. At most one of Loading and
// NotFound is set.
type Aggregate struct {
	Vote         *domain.Vote
	Loading      bool
	FallbackUsed bool
	NotFound     bool
}

type Store struct {
	gw     gateway.Gateway
	cache  domain.UserCache
	logger *zap.Logger
}

func New(gw gateway.Gateway, cache domain.UserCache, logger *zap.Logger) *Store {
	return &Store{gw: gw, cache: cache, logger: logger}
}

// CurrentUser returns the shared user snapshot, loading it from the backend on
// a cache miss. Cache failures only cost a backend call.
func (s *Store) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	if user, err := s.cache.GetUser(ctx, userID); err != nil {
		s.logger.Warn("user cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if user != nil {
		return user, nil
	}
	return s.load(ctx, userID)
}

// Refresh drops the cached snapshot and loads a new one. It is called after
// every mutation that changes points or voting status.
func (s *Store) Refresh(ctx context.Context, userID string) (*domain.User, error) {
	s.Invalidate(ctx, userID)
	return s.load(ctx, userID)
}

func (s *Store) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("user cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// load fetches the snapshot and caches it under the generation read before
// the fetch, so a load racing an invalidation never restores stale state.
func (s *Store) load(ctx context.Context, userID string) (*domain.User, error) {
	gen, genErr := s.cache.Generation(ctx, userID)
	if genErr != nil {
		s.logger.Warn("user cache generation read failed", zap.String("user_id", userID), zap.Error(genErr))
	}

	user, err := s.gw.FetchCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	if user.ID == "" {
		user.ID = userID
	}
	if user.ID != userID {
		s.logger.Warn("backend user does not match session, not caching",
			zap.String("session_user", userID),
			zap.String("backend_user", user.ID),
		)
		return user, nil
	}
	if genErr != nil {
		return user, nil
	}
	if err := s.cache.SetUser(ctx, user, gen); err != nil {
		if errors.Is(err, domain.ErrStaleUser) {
			s.logger.Debug("user invalidated during load, not caching", zap.String("user_id", userID))
		} else {
			s.logger.Warn("user cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return user, nil
}

// Resolve picks the canonical vote. The embedded vote always wins; the
// by-date fetch is only issued when a date was requested and the user carries
// no vote. Any fallback failure is reported as NotFound.
func (s *Store) Resolve(ctx context.Context, requestedDate *int64, user *domain.User) Aggregate {
	if user == nil {
		return Aggregate{Loading: true}
	}
	if requestedDate == nil || user.TodaysVote != nil {
		return Aggregate{Vote: user.TodaysVote}
	}

	vote, err := s.gw.FetchVoteByDate(ctx, *requestedDate)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("fallback vote fetch failed",
				zap.String("user_id", user.ID),
				zap.Int64("date", *requestedDate),
				zap.Error(err),
			)
		}
		return Aggregate{FallbackUsed: true, NotFound: true}
	}
	return Aggregate{Vote: vote, FallbackUsed: true}
}
