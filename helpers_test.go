package authlife

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/juju/clock/testclock"
	"github.com/redis/go-redis/v9"
)

var testStart = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

const testSeed = "seed-0123456789abcdef0123456789abcdef"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Environment = "test"
	cfg.Secrets.Seed = testSeed
	cfg.Metrics.Enabled = true
	return cfg
}

type engineFixture struct {
	engine *Engine
	clock  *testclock.Clock
	redis  *miniredis.Miniredis
	client *redis.Client
}

// newTestEngine builds an engine on miniredis with a manual clock. mutate may
// adjust the config and builder before Build.
func newTestEngine(t *testing.T, mutate func(*Config, *Builder)) *engineFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	mr.SetTime(testStart)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := testclock.NewClock(testStart)
	cfg := testConfig()
	b := New().WithRedis(client).WithClock(clk).WithLogger(discardLogger())
	if mutate != nil {
		mutate(&cfg, b)
	}

	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{engine: engine, clock: clk, redis: mr, client: client}
}

// waitFor polls cond until it holds or a generous deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
