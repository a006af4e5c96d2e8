// Package share runs the two step share flow: compose a post on the host
// platform, then have the backend verify it.
package share

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/behzadon/podium/internal/domain"
	"github.com/behzadon/podium/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	msgNotCompleted  = "share was not completed"
	msgNotVerified   = "We couldn't verify your post. Please try again."
	msgVerifyFailure = "Share verification failed. Please try again."
	msgCancelled     = "Share was cancelled. You can try again or skip."
)

type Composer interface {
	// ComposePost returns the reference of the created post. A user who closes
	// the composer yields domain.ErrCancelled.
	ComposePost(ctx context.Context, text string, embeds []string) (string, error)
}

type Verifier interface {
	VerifyShare(ctx context.Context, postRef, voteID string) (*domain.ShareVerification, error)
}

type Publisher interface {
	PublishShareCompleted(ctx context.Context, event domain.ShareCompleted) error
}

type Request struct {
	UserID string
	VoteID string
	Brands domain.Podium
}

type Outcome struct {
	Status        domain.ShareOutcomeStatus
	PostRef       string
	PointsAwarded int
	AlreadyShared bool
	Message       string
	Err           error
}

type Coordinator struct {
	composer  Composer
	verifier  Verifier
	journal   domain.ShareJournal
	publisher Publisher
	appURL    string
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewCoordinator(
	composer Composer,
	verifier Verifier,
	journal domain.ShareJournal,
	publisher Publisher,
	appURL string,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		composer:  composer,
		verifier:  verifier,
		journal:   journal,
		publisher: publisher,
		appURL:    appURL,
		logger:    logger,
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}
}

// ShareAndVerify composes and verifies one post. Nothing is retried: each call
// runs both steps once. A second call for a vote that is already in flight
// returns domain.ErrShareInFlight without composing.
func (c *Coordinator) ShareAndVerify(ctx context.Context, req Request) (Outcome, error) {
	if strings.TrimSpace(req.VoteID) == "" {
		return Outcome{}, domain.NewFlowError("share", domain.ErrConflict, "There is no vote to share.", domain.ErrNoActiveVote)
	}
	if !c.acquire(req.VoteID) {
		return Outcome{}, domain.NewFlowError("share", domain.ErrShareInFlight, "Your share is already in progress.", nil)
	}
	defer c.release(req.VoteID)

	out := c.run(ctx, req)
	c.record(ctx, req, out)
	return out, nil
}

// Skip leaves the share flow without composing anything.
func (c *Coordinator) Skip(ctx context.Context, req Request) Outcome {
	out := Outcome{Status: domain.ShareSkipped}
	c.record(ctx, req, out)
	return out
}

func (c *Coordinator) run(ctx context.Context, req Request) Outcome {
	postRef, err := c.composer.ComposePost(ctx, PostText(req.Brands), []string{EmbedURL(c.appURL, req.VoteID)})
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			return Outcome{Status: domain.ShareSkipped, Message: msgCancelled}
		}
		c.logger.Warn("compose post failed", zap.String("vote_id", req.VoteID), zap.Error(err))
		return failed("", serverMessage(err, msgNotCompleted), err)
	}
	postRef = strings.TrimSpace(postRef)
	if postRef == "" {
		return failed("", msgNotCompleted, nil)
	}

	sv, err := c.verifier.VerifyShare(ctx, postRef, req.VoteID)
	if err != nil {
		return failed(postRef, serverMessage(err, msgVerifyFailure), err)
	}
	if !sv.Verified {
		return failed(postRef, msgNotVerified, nil)
	}
	return Outcome{
		Status:        domain.ShareVerified,
		PostRef:       postRef,
		PointsAwarded: sv.PointsAwarded,
		AlreadyShared: sv.AlreadyShared,
	}
}

func failed(postRef, message string, cause error) Outcome {
	var fe *domain.FlowError
	if !errors.As(cause, &fe) {
		cause = domain.NewFlowError("share", domain.ErrTransient, message, cause)
	}
	return Outcome{Status: domain.ShareFailed, PostRef: postRef, Message: message, Err: cause}
}

// serverMessage prefers the message carried by a backend rejection.
func serverMessage(err error, fallback string) string {
	var fe *domain.FlowError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return fallback
}

func (c *Coordinator) acquire(voteID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inFlight[voteID]; ok {
		return false
	}
	c.inFlight[voteID] = struct{}{}
	return true
}

func (c *Coordinator) release(voteID string) {
	c.mu.Lock()
	delete(c.inFlight, voteID)
	c.mu.Unlock()
}

// record journals and announces an outcome. Neither step can change it.
func (c *Coordinator) record(ctx context.Context, req Request, out Outcome) {
	metrics.RecordShareOutcome(string(out.Status), out.AlreadyShared)
	now := c.now().UTC()

	if c.journal != nil {
		attempt := &domain.ShareAttempt{
			ID:            uuid.New(),
			UserID:        req.UserID,
			VoteID:        req.VoteID,
			PostRef:       out.PostRef,
			Status:        out.Status,
			PointsAwarded: out.PointsAwarded,
			AlreadyShared: out.AlreadyShared,
			Message:       out.Message,
			CreatedAt:     now,
		}
		if err := c.journal.RecordShareAttempt(ctx, attempt); err != nil {
			c.logger.Error("failed to journal share attempt",
				zap.String("vote_id", req.VoteID),
				zap.String("status", string(out.Status)),
				zap.Error(err),
			)
		}
	}

	if c.publisher == nil || out.Status == domain.ShareFailed {
		return
	}
	event := domain.ShareCompleted{
		EventID:       uuid.New(),
		UserID:        req.UserID,
		VoteID:        req.VoteID,
		Status:        out.Status,
		PointsAwarded: out.PointsAwarded,
		AlreadyShared: out.AlreadyShared,
		CreatedAt:     now,
	}
	if err := c.publisher.PublishShareCompleted(ctx, event); err != nil {
		c.logger.Error("failed to publish share event",
			zap.String("vote_id", req.VoteID),
			zap.Error(err),
		)
	}
}
