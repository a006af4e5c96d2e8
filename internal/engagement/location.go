package engagement

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/behzadon/podium/internal/domain"
)

const (
	BasePath      = "/api/vote"
	SuccessMarker = "success"
)

// Location is the address of the vote flow for a date. The success marker is
// only ever added right after a submission.
func Location(date int64, success bool) string {
	loc := fmt.Sprintf("%s/%d", BasePath, date)
	if success {
		loc += "?" + SuccessMarker + "=1"
	}
	return loc
}

// ParseDate reads the optional date segment of the flow location. An empty
// segment means today and yields nil.
func ParseDate(segment string) (*int64, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return nil, nil
	}
	d, err := strconv.ParseInt(segment, 10, 64)
	if err != nil || d < 0 {
		return nil, domain.NewFlowError("parse date", domain.ErrNotFound, "No vote found for this date.", err)
	}
	return &d, nil
}

// CanonicalRedirect reports where a user who already voted today should be
// sent when they open the flow without a date. Today is taken from now, not
// from the stored vote. It has no side effects.
func CanonicalRedirect(user *domain.User, requestedDate *int64, now time.Time) (string, bool) {
	if user == nil || requestedDate != nil || !user.HasVotedToday {
		return "", false
	}
	return Location(domain.DayStart(now), false), true
}
