package client

import (
	"testing"
	"time"
)

func TestBackoffProgression(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 2, Max: 30 * time.Second, MaxAttempts: 5}

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, w := range want {
		d, ok := b.Delay(i)
		if !ok {
			t.Fatalf("attempt %d refused within budget", i)
		}
		if d != w {
			t.Fatalf("attempt %d: got %v, want %v", i, d, w)
		}
	}

	if _, ok := b.Delay(5); ok {
		t.Fatal("attempt past MaxAttempts must be refused")
	}
}

func TestBackoffCap(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 2, Max: 5 * time.Second, MaxAttempts: 10}
	d, ok := b.Delay(9)
	if !ok || d != 5*time.Second {
		t.Fatalf("got %v ok=%v, want cap 5s", d, ok)
	}
}

func TestBackoffUnlimitedAttempts(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 2, Max: 10 * time.Second}
	if _, ok := b.Delay(100); !ok {
		t.Fatal("MaxAttempts=0 means unlimited")
	}
}
