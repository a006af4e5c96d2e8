// Package gateway is the typed contract to the authoritative brand-voting
// backend. It owns no state; every failure leaves this package as one of the
// domain error kinds.
package gateway

import (
	"context"

	"github.com/behzadon/podium/internal/domain"
)

type Gateway interface {
	FetchCurrentUser(ctx context.Context) (*domain.User, error)
	FetchVoteByDate(ctx context.Context, unixDate int64) (*domain.Vote, error)
	// SubmitVote takes brand ids in storage order (first, second, third).
	SubmitVote(ctx context.Context, brandIDs [3]int) (*domain.Vote, error)
	VerifyShare(ctx context.Context, postRef, voteID string) (*domain.ShareVerification, error)
}

type tokenKey struct{}

// WithToken attaches the caller's session token to ctx so it is forwarded to
// the backend.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
