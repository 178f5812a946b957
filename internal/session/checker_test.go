package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/topicstream/topicstream/internal/cache"
	"github.com/topicstream/topicstream/internal/discourse"
	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/pkg/config"
)

type fakeGateway struct {
	calls   int
	user    *models.User
	err     error
	logouts int
}

func (g *fakeGateway) FetchSession(context.Context) (*models.User, error) {
	g.calls++
	return g.user, g.err
}

func (g *fakeGateway) Logout(context.Context) error {
	g.logouts++
	return nil
}

func newChecker(gw *fakeGateway) (*Checker, *time.Time) {
	current := time.Unix(1_700_000_000, 0)
	c := New(gw, cache.NewMemory(), &config.ForumConfig{
		SessionTTL:   5 * time.Minute,
		RateCooldown: time.Minute,
	})
	c.now = func() time.Time { return current }
	return c, &current
}

func TestStatusCachedWithinTTL(t *testing.T) {
	gw := &fakeGateway{user: &models.User{ID: 1, Username: "neo"}}
	c, clock := newChecker(gw)
	ctx := context.Background()

	first := c.Status(ctx)
	if !first.LoggedIn {
		t.Fatal("expected logged in")
	}
	if gw.calls != 1 {
		t.Fatalf("expected 1 live check, got %d", gw.calls)
	}

	// Any number of calls within the TTL must not hit the network.
	*clock = clock.Add(4 * time.Minute)
	for i := 0; i < 3; i++ {
		got := c.Status(ctx)
		if !got.LoggedIn || got.User == nil || got.User.Username != "neo" {
			t.Errorf("cached status mismatch: %+v", got)
		}
	}
	if gw.calls != 1 {
		t.Errorf("expected 0 extra live checks within TTL, got %d", gw.calls-1)
	}
}

func TestStatusRefreshAfterTTL(t *testing.T) {
	gw := &fakeGateway{user: &models.User{ID: 1, Username: "neo"}}
	c, clock := newChecker(gw)
	ctx := context.Background()

	c.Status(ctx)
	*clock = clock.Add(6 * time.Minute)
	c.Status(ctx)

	if gw.calls != 2 {
		t.Errorf("expected exactly one refresh after TTL, got %d calls", gw.calls)
	}
}

func TestStatusNegativeResultCachedForSameTTL(t *testing.T) {
	gw := &fakeGateway{user: nil} // logged out
	c, clock := newChecker(gw)
	ctx := context.Background()

	first := c.Status(ctx)
	if first.LoggedIn {
		t.Fatal("expected logged out")
	}

	*clock = clock.Add(4 * time.Minute)
	second := c.Status(ctx)
	if second.LoggedIn {
		t.Fatal("expected logged out from cache")
	}
	if gw.calls != 1 {
		t.Errorf("negative result must be cached, got %d calls", gw.calls)
	}
}

func TestStatusRateLimitCooldown(t *testing.T) {
	gw := &fakeGateway{err: discourse.ErrRateLimited}
	c, clock := newChecker(gw)
	ctx := context.Background()

	first := c.Status(ctx)
	if !first.RateLimited {
		t.Fatal("expected rate limited status")
	}
	if gw.calls != 1 {
		t.Fatalf("expected 1 live check, got %d", gw.calls)
	}

	// Within the cooldown window the checker short-circuits.
	var prev = first.RetryAfter
	for _, advance := range []time.Duration{10 * time.Second, 20 * time.Second, 25 * time.Second} {
		*clock = clock.Add(advance)
		got := c.Status(ctx)
		if !got.RateLimited {
			t.Fatalf("expected rate limited within cooldown: %+v", got)
		}
		if got.RetryAfter < 0 {
			t.Errorf("retryAfter must never be negative, got %d", got.RetryAfter)
		}
		if got.RetryAfter > prev {
			t.Errorf("retryAfter must not increase: %d -> %d", prev, got.RetryAfter)
		}
		prev = got.RetryAfter
	}
	if gw.calls != 1 {
		t.Errorf("no live checks during cooldown, got %d", gw.calls)
	}

	// After the cooldown a live check happens again.
	*clock = clock.Add(time.Hour)
	gw.err = nil
	gw.user = &models.User{ID: 1}
	got := c.Status(ctx)
	if !got.LoggedIn {
		t.Errorf("expected live check after cooldown: %+v", got)
	}
	if gw.calls != 2 {
		t.Errorf("expected 2 live checks total, got %d", gw.calls)
	}
}

func TestStatusFailureCachedAsNegative(t *testing.T) {
	gw := &fakeGateway{err: errors.New("connection refused")}
	c, clock := newChecker(gw)
	ctx := context.Background()

	first := c.Status(ctx)
	if first.LoggedIn || first.Error == "" {
		t.Fatalf("expected failed status, got %+v", first)
	}

	// The failure suppresses re-checking for the full TTL.
	*clock = clock.Add(time.Minute)
	second := c.Status(ctx)
	if second.Error == "" {
		t.Errorf("expected cached failure, got %+v", second)
	}
	if gw.calls != 1 {
		t.Errorf("failed check must be cached, got %d calls", gw.calls)
	}
}

func TestClearCacheForcesLiveCheck(t *testing.T) {
	gw := &fakeGateway{user: &models.User{ID: 1}}
	c, _ := newChecker(gw)
	ctx := context.Background()

	c.Status(ctx)
	if err := c.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache() error: %v", err)
	}
	c.Status(ctx)

	if gw.calls != 2 {
		t.Errorf("expected live check after cache clear, got %d calls", gw.calls)
	}
}

func TestLogout(t *testing.T) {
	gw := &fakeGateway{user: &models.User{ID: 1}}
	c, _ := newChecker(gw)
	ctx := context.Background()

	c.Status(ctx)
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if gw.logouts != 1 {
		t.Errorf("expected 1 remote logout, got %d", gw.logouts)
	}

	// Cache is cleared by logout.
	c.Status(ctx)
	if gw.calls != 2 {
		t.Errorf("expected live check after logout, got %d calls", gw.calls)
	}
}
