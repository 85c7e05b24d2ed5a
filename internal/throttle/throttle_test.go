package throttle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedis) IncrBy(_ context.Context, key string, value int64) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key] += value
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	if f.err != nil {
		return redis.NewSliceResult(nil, f.err)
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		if n, ok := f.counts[k]; ok {
			out[i] = strconv.FormatInt(n, 10)
		}
	}
	return redis.NewSliceResult(out, nil)
}

func TestRedisCounterIncrementAndGet(t *testing.T) {
	fr := newFakeRedis()
	c := newRedisCounter(fr, "send:")
	c.Config(2, 30*time.Second)

	current := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	previous := current.Add(-30 * time.Second)

	if err := c.IncrementBy("usr_1", previous, 3); err != nil {
		t.Fatalf("IncrementBy() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Increment("usr_1", current); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}

	curr, prev, err := c.Get("usr_1", current, previous)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if curr != 2 || prev != 3 {
		t.Fatalf("Get() = %d, %d, want 2, 3", curr, prev)
	}

	key := "send:usr_1:" + strconv.FormatInt(current.Unix(), 10)
	if fr.expires[key] != time.Minute {
		t.Fatalf("expiry of %s = %v, want 1m", key, fr.expires[key])
	}

	if curr, prev, _ := c.Get("usr_2", current, previous); curr != 0 || prev != 0 {
		t.Fatalf("Get() for another key = %d, %d, want 0, 0", curr, prev)
	}
}

func TestRedisCounterFailsOpen(t *testing.T) {
	fr := newFakeRedis()
	fr.err = errors.New("connection refused")
	c := newRedisCounter(fr, "")

	now := time.Now().UTC()
	if err := c.Increment("usr_1", now); err != nil {
		t.Fatalf("Increment() error = %v, want nil", err)
	}
	curr, prev, err := c.Get("usr_1", now, now.Add(-time.Minute))
	if err != nil || curr != 0 || prev != 0 {
		t.Fatalf("Get() = %d, %d, %v, want 0, 0, nil", curr, prev, err)
	}
}

func TestRedisCounterBacksHTTPRate(t *testing.T) {
	fr := newFakeRedis()
	limited := httprate.Limit(2, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return r.Header.Get("X-User"), nil
		}),
		httprate.WithLimitCounter(newRedisCounter(fr, "send:")),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.Header.Set("X-User", user)
		rr := httptest.NewRecorder()
		limited.ServeHTTP(rr, req)
		return rr.Code
	}

	for i, want := range []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests} {
		if got := send("usr_1"); got != want {
			t.Fatalf("send #%d status = %d, want %d", i, got, want)
		}
	}
	if got := send("usr_2"); got != http.StatusNoContent {
		t.Fatalf("send for another user status = %d, want %d", got, http.StatusNoContent)
	}
}
