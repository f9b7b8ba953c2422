package common

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestBoxLocked(t *testing.T) {
	box := NewBox(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			box.Locked(func(v *int) { *v++ })
		}()
	}
	wg.Wait()

	got := LockedGet(box, func(v *int) int { return *v })
	if got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"INFO":  logrus.InfoLevel,
		"debug": logrus.DebugLevel,
		"Warn":  logrus.WarnLevel,
		"bogus": logrus.DebugLevel,
	}
	for in, want := range cases {
		if got := LogLevel(in); got != want {
			t.Fatalf("LogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
