package router

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiogate/radiogate/internal/core/forms"
	"github.com/radiogate/radiogate/internal/core/outbox"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []string // "station path" pairs, station only here
	paths []string
}

func (f *fakeSender) SendForm(ctx context.Context, path, station string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, station)
	f.paths = append(f.paths, path)
}

func (f *fakeSender) stations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

type fakeSnapshot struct {
	table map[string][]string
}

func (f *fakeSnapshot) PortSnapshot() map[string][]string {
	return f.table
}

func newTestRouter(t *testing.T, table map[string][]string) (*Router, *outbox.Box, *fakeSender) {
	t.Helper()
	box, err := outbox.New(filepath.Join(t.TempDir(), "outbox"))
	require.NoError(t, err)

	sender := &fakeSender{}
	r := New(Config{Interval: time.Hour}, box, sender, &fakeSnapshot{table: table})
	return r, box, sender
}

func TestCycleDispatchesAtMostOnePerPort(t *testing.T) {
	r, box, sender := newTestRouter(t, map[string][]string{
		"port1": {"STA1", "STA2"},
	})

	_, err := box.Put(&forms.Form{To: "STA1", Message: "a"})
	require.NoError(t, err)
	_, err = box.Put(&forms.Form{To: "STA2", Message: "b"})
	require.NoError(t, err)

	r.Cycle(context.Background())

	// Exactly one of the two goes out; the other stays queued
	require.Len(t, sender.stations(), 1)
	pending, err := box.Scan()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Next cycle picks up the survivor
	r.Cycle(context.Background())
	assert.Len(t, sender.stations(), 2)

	pending, err = box.Scan()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCycleDispatchesOncePerPortAcrossPorts(t *testing.T) {
	r, box, sender := newTestRouter(t, map[string][]string{
		"port1": {"STA1"},
		"port2": {"STA2"},
	})

	_, err := box.Put(&forms.Form{To: "STA1"})
	require.NoError(t, err)
	_, err = box.Put(&forms.Form{To: "STA2"})
	require.NoError(t, err)

	r.Cycle(context.Background())

	got := sender.stations()
	want := []string{"STA1", "STA2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dispatched stations mismatch (-want +got):\n%s", diff)
	}
}

func TestCycleSkipsUnreachableDestinations(t *testing.T) {
	r, box, sender := newTestRouter(t, map[string][]string{
		"port1": {"STA1"},
	})

	_, err := box.Put(&forms.Form{To: "STA9"})
	require.NoError(t, err)

	r.Cycle(context.Background())

	assert.Empty(t, sender.stations())
	pending, err := box.Scan()
	require.NoError(t, err)
	assert.Len(t, pending, 1, "unroutable message stays queued")
}

func TestCycleClaimsDispatchedMessage(t *testing.T) {
	r, box, sender := newTestRouter(t, map[string][]string{
		"port1": {"STA1"},
	})

	put, err := box.Put(&forms.Form{To: "STA1", Message: "payload"})
	require.NoError(t, err)

	r.Cycle(context.Background())

	require.Len(t, sender.paths, 1)
	claimed := sender.paths[0]
	assert.NotEqual(t, put, claimed, "dispatch hands over the claimed path")
	assert.FileExists(t, claimed)

	form, err := forms.Load(claimed)
	require.NoError(t, err)
	assert.Equal(t, "payload", form.Message)
}

func TestRunHonorsEnabledFlag(t *testing.T) {
	box, err := outbox.New(filepath.Join(t.TempDir(), "outbox"))
	require.NoError(t, err)
	_, err = box.Put(&forms.Form{To: "STA1"})
	require.NoError(t, err)

	sender := &fakeSender{}
	enabled := false
	r := New(Config{
		Interval: 10 * time.Millisecond,
		Enabled:  func() bool { return enabled },
	}, box, sender, &fakeSnapshot{table: map[string][]string{"port1": {"STA1"}}})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = r.Run(ctx)

	assert.Empty(t, sender.stations(), "disabled router must not dispatch")
}

func TestTriggerInterruptsSleep(t *testing.T) {
	box, err := outbox.New(filepath.Join(t.TempDir(), "outbox"))
	require.NoError(t, err)
	_, err = box.Put(&forms.Form{To: "STA1"})
	require.NoError(t, err)

	sender := &fakeSender{}
	r := New(Config{Interval: time.Hour}, box, sender,
		&fakeSnapshot{table: map[string][]string{"port1": {"STA1"}}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	// The first cycle runs immediately; wait for it
	require.Eventually(t, func() bool {
		return len(sender.stations()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = box.Put(&forms.Form{To: "STA1"})
	require.NoError(t, err)
	r.Trigger()

	require.Eventually(t, func() bool {
		return len(sender.stations()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
