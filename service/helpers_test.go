package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"decoration-mirror/models"
)

// recordingSleep captures requested delays without waiting
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// fakeRemote serves fixed member pages keyed by the after cursor
type fakeRemote struct {
	mu    sync.Mutex
	pages map[string][]models.Member
	err   error
	calls []string
}

func (f *fakeRemote) ListMembers(ctx context.Context, guildID string, after string) ([]models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, after)
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[after], nil
}

// stepClock returns a strictly increasing time on each call
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{now: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func memberWithDecoration(userID, asset string) models.Member {
	return models.Member{
		User: models.MemberUser{
			ID:                   userID,
			Username:             "user" + userID,
			AvatarDecorationData: &models.AvatarDecorationData{Asset: asset},
		},
	}
}

func strPtr(s string) *string {
	return &s
}
