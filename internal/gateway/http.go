package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/behzadon/podium/internal/domain"
	"github.com/behzadon/podium/internal/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	routeCurrentUser = "/api/users/me"
	routeVotes       = "/api/votes"
)

// envelope is the response body of every backend route.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// RespError is returned for any non-2xx backend reply.
type RespError struct {
	HTTPCode int
	Message  string
}

func (e *RespError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.HTTPCode, http.StatusText(e.HTTPCode))
	}
	return fmt.Sprintf("%d %s", e.HTTPCode, e.Message)
}

type BreakerSettings struct {
	MaxFailures   uint32
	OpenTimeout   time.Duration
	CountInterval time.Duration
}

type HTTPGateway struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewHTTPGateway returns a gateway talking JSON to baseURL. A nil client means
// http.DefaultClient; no request timeout is imposed here.
func NewHTTPGateway(baseURL string, client *http.Client, bs BreakerSettings, logger *zap.Logger) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	st := gobreaker.Settings{
		Name:     "backend",
		Interval: bs.CountInterval,
		Timeout:  bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransport(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("backend circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

func (g *HTTPGateway) FetchCurrentUser(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := g.call(ctx, "FetchCurrentUser", http.MethodGet, routeCurrentUser, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *HTTPGateway) FetchVoteByDate(ctx context.Context, unixDate int64) (*domain.Vote, error) {
	route := routeVotes + "/" + strconv.FormatInt(unixDate, 10)
	var vote domain.Vote
	if err := g.call(ctx, "FetchVoteByDate", http.MethodGet, route, nil, &vote); err != nil {
		return nil, err
	}
	if vote.ID == "" {
		return nil, domain.NewFlowError("FetchVoteByDate", domain.ErrNotFound, "", nil)
	}
	return &vote, nil
}

type submitVoteRequest struct {
	BrandIDs [3]int `json:"brandIds"`
}

func (g *HTTPGateway) SubmitVote(ctx context.Context, brandIDs [3]int) (*domain.Vote, error) {
	var vote domain.Vote
	err := g.call(ctx, "SubmitVote", http.MethodPost, routeVotes, submitVoteRequest{BrandIDs: brandIDs}, &vote)
	if err != nil {
		return nil, err
	}
	if vote.ID == "" {
		return nil, domain.NewFlowError("SubmitVote", domain.ErrTransient, "", errors.New("backend returned a vote without id"))
	}
	return &vote, nil
}

type verifyShareRequest struct {
	CastHash string `json:"castHash"`
	VoteID   string `json:"voteId"`
}

func (g *HTTPGateway) VerifyShare(ctx context.Context, postRef, voteID string) (*domain.ShareVerification, error) {
	if strings.TrimSpace(postRef) == "" || strings.TrimSpace(voteID) == "" {
		return nil, domain.NewFlowError("VerifyShare", domain.ErrValidation, "Missing post or vote reference.", nil)
	}
	route := routeVotes + "/" + url.PathEscape(voteID) + "/share/verify"
	var sv domain.ShareVerification
	err := g.call(ctx, "VerifyShare", http.MethodPost, route, verifyShareRequest{CastHash: postRef, VoteID: voteID}, &sv)
	if err != nil {
		return nil, err
	}
	if sv.CastRef == "" {
		sv.CastRef = postRef
	}
	if sv.VoteID == "" {
		sv.VoteID = voteID
	}
	return &sv, nil
}

func (g *HTTPGateway) call(ctx context.Context, op, method, route string, body, out interface{}) error {
	start := time.Now()
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.makeReq(ctx, method, route, body)
	})
	if err != nil {
		metrics.ObserveGateway(op, outcomeLabel(err), start)
		g.logger.Warn("backend call failed",
			zap.String("op", op),
			zap.String("route", route),
			zap.Error(err),
		)
		return mapError(op, err)
	}
	metrics.ObserveGateway(op, "ok", start)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.([]byte), out); err != nil {
		return domain.NewFlowError(op, domain.ErrTransient, "", fmt.Errorf("decode reply: %w", err))
	}
	return nil
}

func (g *HTTPGateway) makeReq(ctx context.Context, method, route string, v interface{}) ([]byte, error) {
	var reqBody io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+route, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if v != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	r, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if r.StatusCode < 200 || r.StatusCode > 299 {
		return nil, &RespError{HTTPCode: r.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode envelope: %w", decodeErr)
	}
	if env.Status == "error" {
		return nil, &RespError{HTTPCode: http.StatusBadRequest, Message: env.Message}
	}
	return []byte(env.Data), nil
}

// isTransport reports whether err counts against the circuit breaker. The
// breaker is shared by every session, so a caller giving up on its own
// request never counts.
func isTransport(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *RespError
	if errors.As(err, &re) {
		return re.HTTPCode >= http.StatusInternalServerError
	}
	return true
}

func mapError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewFlowError(op, domain.ErrTransient,
			"The voting service is temporarily unavailable. Please try again.", err)
	}

	var re *RespError
	if !errors.As(err, &re) {
		return domain.NewFlowError(op, domain.ErrTransient, "", err)
	}

	switch re.HTTPCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.NewFlowError(op, domain.ErrValidation, re.Message, err)
	case http.StatusNotFound:
		return domain.NewFlowError(op, domain.ErrNotFound, re.Message, err)
	case http.StatusConflict:
		return domain.NewFlowError(op, domain.ErrConflict, re.Message, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewFlowError(op, domain.ErrUnauthorized, re.Message, err)
	default:
		return domain.NewFlowError(op, domain.ErrTransient, re.Message, err)
	}
}

func outcomeLabel(err error) string {
	var re *RespError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &re):
		return strconv.Itoa(re.HTTPCode)
	default:
		return "transport"
	}
}
