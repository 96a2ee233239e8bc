package jamf

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/metal-toolbox/devicesync/internal/metrics"
)

// DefaultRenewalThreshold renews 5 minutes before the 30 minute token expiry.
const DefaultRenewalThreshold = 1500 * time.Second

// Session holds the single bearer token of a batch run.
//
// It is not safe for concurrent use, the token is only replaced between
// records.
type Session struct {
	exchanger Exchanger
	clock     Clock
	threshold time.Duration
	token     *Token
	renewals  int
}

// NewSession returns a session that is not yet open.
func NewSession(exchanger Exchanger, threshold time.Duration, clock Clock) *Session {
	if threshold <= 0 {
		threshold = DefaultRenewalThreshold
	}

	if clock == nil {
		clock = RealClock()
	}

	return &Session{
		exchanger: exchanger,
		clock:     clock,
		threshold: threshold,
	}
}

// Open performs the initial credential exchange.
func (s *Session) Open(ctx context.Context) error {
	token, err := s.exchanger.Exchange(ctx)
	if err != nil {
		return err
	}

	s.token = token

	slog.Debug("session token issued", "issuedAt", token.IssuedAt, "expires", token.Expires)

	return nil
}

// MaybeRenew replaces the token when its age has reached the renewal threshold,
// or five sixths of a shorter token lifetime, and reports whether it did.
// A failed renewal is an ErrAuth.
func (s *Session) MaybeRenew(ctx context.Context) (bool, error) {
	if s.token == nil {
		return false, errors.Wrap(ErrAuth, "session is not open")
	}

	age := s.token.Age(s.clock.Now())

	renewAfter := s.token.renewAfter(s.threshold)
	if age < renewAfter {
		return false, nil
	}

	slog.Info("session token is due for renewal",
		"age", age.Round(time.Second).String(),
		"renewAfter", renewAfter.String(),
		"lifetime", s.token.Lifetime.String(),
	)

	token, err := s.exchanger.Exchange(ctx)
	if err != nil {
		return false, err
	}

	s.token = token
	s.renewals++
	metrics.TokenRenewals.Inc()

	return true, nil
}

// Token returns the current token, nil before Open.
func (s *Session) Token() *Token {
	return s.token
}

// Renewals returns the number of renewals since Open.
func (s *Session) Renewals() int {
	return s.renewals
}

func (s *Session) authorize(r *http.Request) error {
	if s.token == nil {
		return errors.Wrap(ErrAuth, "session is not open")
	}

	s.token.oauth2().SetAuthHeader(r)

	return nil
}
