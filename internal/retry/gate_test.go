package retry

import (
	"context"
	"testing"
	"time"
)

func TestGate_Delay(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	gate := NewGate(10, 5*time.Minute)
	gate.now = func() time.Time { return now }

	tests := []struct {
		name  string
		quota Quota
		want  time.Duration
	}{
		{"unknown quota", Quota{}, 0},
		{"above floor", Quota{Known: true, Remaining: 11, Reset: now.Add(time.Minute)}, 0},
		{"at floor", Quota{Known: true, Remaining: 10, Reset: now.Add(time.Minute)}, time.Minute},
		{"exhausted", Quota{Known: true, Remaining: 0, Reset: now.Add(2 * time.Minute)}, 2 * time.Minute},
		{"reset passed", Quota{Known: true, Remaining: 0, Reset: now.Add(-time.Second)}, 0},
		{"no reset time", Quota{Known: true, Remaining: 0}, 0},
		{"capped", Quota{Known: true, Remaining: 0, Reset: now.Add(time.Hour)}, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.Delay(tt.quota); got != tt.want {
				t.Errorf("Delay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Error("Sleep() with canceled ctx = nil, want error")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() did not return promptly on cancel")
	}
}
