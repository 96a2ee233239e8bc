package jamf

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeExchanger struct {
	clock    *fakeClock
	lifetime time.Duration
	calls    int
	err      error
}

func (e *fakeExchanger) Exchange(_ context.Context) (*Token, error) {
	e.calls++

	if e.err != nil {
		return nil, e.err
	}

	return &Token{
		Value:    "token-" + strconv.Itoa(e.calls),
		IssuedAt: e.clock.Now(),
		Lifetime: e.lifetime,
	}, nil
}

func TestSessionMaybeRenew(t *testing.T) {
	tests := []struct {
		name        string
		elapsed     time.Duration
		wantRenewed bool
	}{
		{"fresh token", 0, false},
		{"just under threshold", DefaultRenewalThreshold - time.Second, false},
		{"at threshold", DefaultRenewalThreshold, true},
		{"past threshold", 29 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			exchanger := &fakeExchanger{clock: clock}
			session := NewSession(exchanger, DefaultRenewalThreshold, clock)

			require.NoError(t, session.Open(context.Background()))
			assert.Equal(t, "token-1", session.Token().Value)

			clock.advance(tt.elapsed)

			renewed, err := session.MaybeRenew(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantRenewed, renewed)

			if tt.wantRenewed {
				assert.Equal(t, 2, exchanger.calls)
				assert.Equal(t, "token-2", session.Token().Value)
				assert.Equal(t, clock.Now(), session.Token().IssuedAt)
				assert.Equal(t, 1, session.Renewals())
			} else {
				assert.Equal(t, 1, exchanger.calls)
				assert.Equal(t, 0, session.Renewals())
			}
		})
	}
}

func TestSessionRenewsBeforeShortLifetime(t *testing.T) {
	tests := []struct {
		name        string
		lifetime    time.Duration
		elapsed     time.Duration
		wantRenewed bool
	}{
		{"60s token early", time.Minute, 49 * time.Second, false},
		{"60s token at five sixths", time.Minute, 50 * time.Second, true},
		{"60s token long expired", time.Minute, 5 * time.Minute, true},
		{"30m token uses threshold", 30 * time.Minute, DefaultRenewalThreshold - time.Second, false},
		{"30m token at threshold", 30 * time.Minute, DefaultRenewalThreshold, true},
		{"long token uses threshold", 2 * time.Hour, DefaultRenewalThreshold, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			exchanger := &fakeExchanger{clock: clock, lifetime: tt.lifetime}
			session := NewSession(exchanger, DefaultRenewalThreshold, clock)

			require.NoError(t, session.Open(context.Background()))

			clock.advance(tt.elapsed)

			renewed, err := session.MaybeRenew(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantRenewed, renewed)
		})
	}
}

func TestSessionRenewsOncePerCrossing(t *testing.T) {
	clock := newFakeClock()
	exchanger := &fakeExchanger{clock: clock}
	session := NewSession(exchanger, DefaultRenewalThreshold, clock)

	require.NoError(t, session.Open(context.Background()))

	clock.advance(DefaultRenewalThreshold)

	renewed, err := session.MaybeRenew(context.Background())
	require.NoError(t, err)
	assert.True(t, renewed)

	// no time has elapsed since the renewal
	renewed, err = session.MaybeRenew(context.Background())
	require.NoError(t, err)
	assert.False(t, renewed)

	assert.Equal(t, 2, exchanger.calls)
	assert.Equal(t, 1, session.Renewals())
}

func TestSessionRenewalFailure(t *testing.T) {
	clock := newFakeClock()
	exchanger := &fakeExchanger{clock: clock}
	session := NewSession(exchanger, time.Minute, clock)

	require.NoError(t, session.Open(context.Background()))

	exchanger.err = &ResponseError{Kind: EndpointAuth, StatusCode: 401, Err: ErrAuth}
	clock.advance(time.Minute)

	renewed, err := session.MaybeRenew(context.Background())
	assert.False(t, renewed)
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Equal(t, "token-1", session.Token().Value)
}

func TestSessionNotOpen(t *testing.T) {
	session := NewSession(&fakeExchanger{clock: newFakeClock()}, 0, nil)

	_, err := session.MaybeRenew(context.Background())
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Nil(t, session.Token())
	assert.Equal(t, DefaultRenewalThreshold, session.threshold)
}
