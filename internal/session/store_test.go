package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Skufu/cardioscore/internal/report"
	"github.com/Skufu/cardioscore/internal/risk"
)

func entry(id string) report.Entry {
	return report.Entry{
		Patient: "Jane",
		Outcome: report.Outcome{
			ID:                 id,
			CreatedAt:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			Label:              1,
			ProbabilityDisease: 0.7,
			ProbabilitySafe:    0.3,
			RiskTier:           risk.TierHigh,
			HealthScore:        30,
			Recommendations:    []string{"see a doctor"},
		},
	}
}

func exerciseStore(t *testing.T, s Store, sessionID string) {
	t.Helper()
	ctx := context.Background()

	hist, err := s.History(ctx, sessionID)
	if err != nil || len(hist) != 0 {
		t.Fatalf("expected empty history, got %v %v", hist, err)
	}

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := Recorder(s, sessionID).Append(ctx, entry(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	hist, err = s.History(ctx, sessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 || hist[0].Outcome.ID != "b" || hist[2].Outcome.ID != "d" {
		t.Fatalf("expected the last 3 entries oldest first, got %+v", hist)
	}
	if hist[2].Outcome.RiskTier != risk.TierHigh || hist[2].Patient != "Jane" {
		t.Fatalf("entry did not round-trip: %+v", hist[2])
	}

	if _, err := s.Patient(ctx, sessionID, "Zed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, name := range []string{"Zed", "Amy"} {
		p := Patient{Name: name, Features: map[string]float64{"age": 50}, SavedAt: time.Now().UTC()}
		if err := s.SavePatient(ctx, sessionID, p); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	got, err := s.Patient(ctx, sessionID, "Zed")
	if err != nil || got.Features["age"] != 50 {
		t.Fatalf("unexpected patient %+v: %v", got, err)
	}
	list, err := s.Patients(ctx, sessionID)
	if err != nil || len(list) != 2 || list[0].Name != "Amy" {
		t.Fatalf("unexpected patients %+v: %v", list, err)
	}

	if err := s.Append(ctx, "bad id!", entry("x")); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(3), NewID())
}

func TestMemoryStoreSessionsAreIsolated(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()
	_ = s.Append(ctx, "one", entry("a"))
	hist, _ := s.History(ctx, "two")
	if len(hist) != 0 {
		t.Fatalf("session two should be empty, got %+v", hist)
	}
}

func TestValidID(t *testing.T) {
	cases := map[string]bool{
		"":                       false,
		"abc-123_X":              true,
		"a b":                    false,
		"../etc":                 false,
		NewID():                  true,
		string(make([]byte, 65)): false,
	}
	for id, want := range cases {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}

func newRedisStore(t *testing.T, limit int, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, limit, ttl), mr
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t, 3, time.Minute)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	exerciseStore(t, store, NewID())
}

func TestRedisStoreCapsListAndRefreshesTTL(t *testing.T) {
	store, mr := newRedisStore(t, 2, time.Hour)
	ctx := context.Background()
	id := NewID()

	for _, eid := range []string{"a", "b", "c"} {
		if err := store.Append(ctx, id, entry(eid)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	items, err := mr.List(historyKey(id))
	if err != nil || len(items) != 2 {
		t.Fatalf("expected list trimmed to 2, got %v: %v", items, err)
	}
	if ttl := mr.TTL(historyKey(id)); ttl != time.Hour {
		t.Fatalf("expected history ttl of 1h, got %s", ttl)
	}

	mr.FastForward(30 * time.Minute)
	_ = store.Append(ctx, id, entry("d"))
	if ttl := mr.TTL(historyKey(id)); ttl != time.Hour {
		t.Fatalf("append should refresh the ttl, got %s", ttl)
	}

	if err := store.SavePatient(ctx, id, Patient{Name: "Jane"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Hour)
	hist, _ := store.History(ctx, id)
	patients, _ := store.Patients(ctx, id)
	if len(hist) != 0 || len(patients) != 0 {
		t.Fatalf("expired session should be empty, got %d entries and %d patients", len(hist), len(patients))
	}
}

func TestRedisStoreRejectsCorruptEntries(t *testing.T) {
	store, mr := newRedisStore(t, 5, 0)
	id := NewID()
	if _, err := mr.Push(historyKey(id), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.History(context.Background(), id); err == nil {
		t.Fatal("expected decode error for a corrupt entry")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t, 5, time.Minute)
	mr.Close()
	ctx := context.Background()
	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected ping to fail")
	}
	if err := store.Append(ctx, NewID(), entry("a")); err == nil || errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected a connection error, got %v", err)
	}
}
