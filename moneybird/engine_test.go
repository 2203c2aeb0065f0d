package moneybird

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/sirupsen/logrus"
)

func TestPerformSyncSkipsWhenAlreadyRunning(t *testing.T) {
	settings := &config.MoneybirdSettings{AdministrationID: "adm1"}
	engine := NewEngine(NewResolver(NewDefaultRegistry(), nil, logrus.New()), settings, logrus.New())

	// Simulate an in-flight pass; a second invocation must be a silent
	// no-op instead of queueing or blocking.
	atomic.StoreInt32(&engine.running, 1)

	run, err := engine.PerformSync(context.Background(), SyncOptions{Full: true})
	if err != nil {
		t.Fatalf("busy engine must not error: %v", err)
	}
	if run != nil {
		t.Fatalf("busy engine must not produce a run")
	}
	if atomic.LoadInt32(&engine.running) != 1 {
		t.Fatalf("skipped invocation must not clear the running flag")
	}
}

func TestPerformQueuedRunSkipsWhenAlreadyRunning(t *testing.T) {
	settings := &config.MoneybirdSettings{AdministrationID: "adm1"}
	engine := NewEngine(NewResolver(NewDefaultRegistry(), nil, logrus.New()), settings, logrus.New())

	atomic.StoreInt32(&engine.running, 1)

	run, err := engine.PerformQueuedRun(context.Background(), 42)
	if err != nil {
		t.Fatalf("busy engine must not error: %v", err)
	}
	if run != nil {
		t.Fatalf("busy engine must leave the queued run untouched")
	}
}

func TestRunStatus(t *testing.T) {
	cases := []struct {
		name        string
		failedTypes int
		attempted   int
		want        string
	}{
		{"nothing attempted", 0, 0, models.SyncRunStatusSuccess},
		{"all clean", 0, 3, models.SyncRunStatusSuccess},
		{"one of three failed", 1, 3, models.SyncRunStatusPartial},
		{"all failed", 3, 3, models.SyncRunStatusFailed},
		{"single type failed", 1, 1, models.SyncRunStatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := runStatus(tc.failedTypes, tc.attempted); got != tc.want {
				t.Fatalf("runStatus(%d, %d) = %q, want %q", tc.failedTypes, tc.attempted, got, tc.want)
			}
		})
	}
}
