package catalog

import (
	"testing"
	"time"
)

func TestSnapshot_IsFresh(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		snap Snapshot
		ttl  time.Duration
		want bool
	}{
		{"zero fetch time", Snapshot{}, time.Hour, false},
		{"young", Snapshot{FetchedAt: now.Add(-time.Minute)}, time.Hour, true},
		{"expired", Snapshot{FetchedAt: now.Add(-2 * time.Hour)}, time.Hour, false},
		{"exactly ttl old", Snapshot{FetchedAt: now.Add(-time.Hour)}, time.Hour, false},
		{"no ttl", Snapshot{FetchedAt: now.Add(-1000 * time.Hour)}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.IsFresh(now, tt.ttl); got != tt.want {
				t.Errorf("IsFresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNopStore(t *testing.T) {
	s := NewNopStore()
	if err := s.Put("iana", Snapshot{Entries: []string{"com"}, FetchedAt: time.Now()}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, err := s.Get("iana"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
