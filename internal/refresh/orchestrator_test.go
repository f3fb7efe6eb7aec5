package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phonograph/internal/library"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeLoader struct {
	calls atomic.Int32
	gate  chan struct{}
	fail  atomic.Bool
}

func (f *fakeLoader) load(ctx context.Context) (*Snapshot, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail.Load() {
		return nil, errors.New("index unavailable")
	}
	return &Snapshot{Result: &library.Result{SkippedRows: int(n)}}, nil
}

func start(t *testing.T, load Loader, changes <-chan library.Change) (*Orchestrator, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	o := New(load, changes, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return o, ctx
}

func receive(t *testing.T, ch <-chan *Snapshot) *Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return s
	case <-time.After(waitFor):
		t.Fatal("no snapshot received")
		return nil
	}
}

func TestLoadsOnlyWhileSubscribed(t *testing.T) {
	f := &fakeLoader{}
	changes := make(chan library.Change)
	o, ctx := start(t, f.load, changes)

	changes <- library.Change{Kind: library.ChangeAudio, Version: 1}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Nil(t, o.Latest())

	sub := o.Subscribe(ctx)
	snap := receive(t, sub)
	assert.NotEqual(t, snap.Generation.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, snap.CompletedAt.IsZero())
	assert.Same(t, snap, o.Latest())
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestStaleVersionsAreIgnored(t *testing.T) {
	f := &fakeLoader{}
	changes := make(chan library.Change)
	o, ctx := start(t, f.load, changes)
	sub := o.Subscribe(ctx)

	changes <- library.Change{Kind: library.ChangeAudio, Version: 3}
	first := receive(t, sub)

	changes <- library.Change{Kind: library.ChangeAudio, Version: 3}
	changes <- library.Change{Kind: library.ChangeAudio, Version: 2}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())

	changes <- library.Change{Kind: library.ChangePlaylists, Version: 1}
	second := receive(t, sub)
	assert.NotEqual(t, first.Generation, second.Generation)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestNotificationsDuringLoadCoalesce(t *testing.T) {
	f := &fakeLoader{gate: make(chan struct{})}
	changes := make(chan library.Change)
	o, ctx := start(t, f.load, changes)
	sub := o.Subscribe(ctx)

	changes <- library.Change{Kind: library.ChangeAudio, Version: 1}
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, waitFor, tick)

	for v := uint64(2); v <= 5; v++ {
		changes <- library.Change{Kind: library.ChangeAudio, Version: v}
	}
	changes <- library.Change{Kind: library.ChangePlaylists, Version: 1}

	f.gate <- struct{}{}
	receive(t, sub)
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, waitFor, tick)

	f.gate <- struct{}{}
	receive(t, sub)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestLatestSnapshotIsReplayed(t *testing.T) {
	f := &fakeLoader{}
	o, ctx := start(t, f.load, nil)

	first := receive(t, o.Subscribe(ctx))
	late := receive(t, o.Subscribe(ctx))
	assert.Same(t, first, late)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRefreshRunsWithoutSubscribers(t *testing.T) {
	f := &fakeLoader{}
	changes := make(chan library.Change)
	o, _ := start(t, f.load, changes)

	snap, err := o.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, o.Latest())
	assert.NoError(t, o.LastError())

	f.fail.Store(true)
	_, err = o.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, snap, o.Latest())
	assert.EqualError(t, o.LastError(), "index unavailable")
}

func TestRefreshWaitsForFreshLoad(t *testing.T) {
	f := &fakeLoader{gate: make(chan struct{})}
	changes := make(chan library.Change)
	o, ctx := start(t, f.load, changes)
	o.Subscribe(ctx)

	changes <- library.Change{Kind: library.ChangeAudio, Version: 1}
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, waitFor, tick)

	result := make(chan *Snapshot, 1)
	go func() {
		snap, _ := o.Refresh(context.Background())
		result <- snap
	}()
	time.Sleep(20 * time.Millisecond)

	f.gate <- struct{}{}
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, waitFor, tick)
	select {
	case <-result:
		t.Fatal("refresh answered by a load that started before it")
	default:
	}

	f.gate <- struct{}{}
	select {
	case snap := <-result:
		assert.Same(t, snap, o.Latest())
	case <-time.After(waitFor):
		t.Fatal("refresh did not return")
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	f := &fakeLoader{}
	o, _ := start(t, f.load, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sub := o.Subscribe(ctx)
	receive(t, sub)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, waitFor, tick)
	assert.False(t, o.active())
}

func TestSlowSubscriberSeesNewestOnly(t *testing.T) {
	f := &fakeLoader{}
	changes := make(chan library.Change)
	o, ctx := start(t, f.load, changes)
	sub := o.Subscribe(ctx)

	for v := uint64(1); v <= 3; v++ {
		changes <- library.Change{Kind: library.ChangeAudio, Version: v}
		require.Eventually(t, func() bool { return f.calls.Load() == int32(v) }, waitFor, tick)
	}
	require.Eventually(t, func() bool {
		latest := o.Latest()
		return latest != nil && latest.Result.SkippedRows == 3
	}, waitFor, tick)

	snap := receive(t, sub)
	assert.Equal(t, 3, snap.Result.SkippedRows)
	assert.Empty(t, sub)
}
