package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"phonograph/internal/library"
)

// Snapshot is one published library state. Snapshots are never modified
// after publication.
type Snapshot struct {
	Generation    uuid.UUID
	Result        *library.Result
	Playlists     []*library.Playlist
	RecentlyAdded *library.RecentlyAdded
	CompletedAt   time.Time
}

// Loader builds a fresh snapshot. Generation and CompletedAt are filled in
// by the orchestrator.
type Loader func(ctx context.Context) (*Snapshot, error)

type loadResult struct {
	snap *Snapshot
	err  error
}

type refreshRequest struct {
	done chan loadResult
}

// Orchestrator turns change notifications into library snapshots. At most
// one load runs at a time, notifications arriving meanwhile collapse into
// one follow-up load, and loads only run while someone is subscribed.
type Orchestrator struct {
	load    Loader
	changes <-chan library.Change
	logger  zerolog.Logger

	requests    chan *refreshRequest
	subsChanged chan struct{}

	mu      sync.Mutex
	latest  *Snapshot
	lastErr error
	subs    map[chan *Snapshot]struct{}
}

// New creates an orchestrator fed by changes, which may be nil. Without a
// change source the first subscriber triggers one initial load.
func New(load Loader, changes <-chan library.Change, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		load:        load,
		changes:     changes,
		logger:      logger.With().Str("component", "refresh").Logger(),
		requests:    make(chan *refreshRequest),
		subsChanged: make(chan struct{}, 1),
		subs:        make(map[chan *Snapshot]struct{}),
	}
}

// Run coordinates loads until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	var (
		seen    = make(map[library.ChangeKind]uint64)
		pending = o.changes == nil
		loading bool
		done    = make(chan loadResult, 1)
		waiting []*refreshRequest
		batch   []*refreshRequest
		changes = o.changes
	)

	for {
		if !loading && (len(waiting) > 0 || (pending && o.active())) {
			loading, pending = true, false
			batch, waiting = waiting, nil
			go func() {
				snap, err := o.load(ctx)
				done <- loadResult{snap: snap, err: err}
			}()
		}

		select {
		case <-ctx.Done():
			for _, req := range append(batch, waiting...) {
				req.done <- loadResult{err: ctx.Err()}
			}
			return nil

		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if last, ok := seen[c.Kind]; ok && c.Version <= last {
				o.logger.Debug().Stringer("kind", c.Kind).Uint64("version", c.Version).Msg("stale change ignored")
				continue
			}
			seen[c.Kind] = c.Version
			pending = true

		case req := <-o.requests:
			waiting = append(waiting, req)

		case <-o.subsChanged:

		case res := <-done:
			loading = false
			res = o.publish(res)
			for _, req := range batch {
				req.done <- res
			}
			batch = nil
		}
	}
}

func (o *Orchestrator) publish(res loadResult) loadResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if res.err != nil {
		o.lastErr = res.err
		o.logger.Error().Err(res.err).Msg("library load failed, keeping previous snapshot")
		return res
	}

	res.snap.Generation = uuid.New()
	res.snap.CompletedAt = time.Now()
	o.latest = res.snap
	o.lastErr = nil
	for ch := range o.subs {
		offer(ch, res.snap)
	}
	o.logger.Info().Stringer("generation", res.snap.Generation).Msg("library snapshot published")
	return res
}

// offer replaces any unread snapshot in ch with snap.
func offer(ch chan *Snapshot, snap *Snapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (o *Orchestrator) active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs) > 0
}

func (o *Orchestrator) signalSubs() {
	select {
	case o.subsChanged <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel of snapshots that is closed when ctx is done.
// The latest snapshot, if any, is delivered immediately. A slow reader only
// ever sees the newest snapshot.
func (o *Orchestrator) Subscribe(ctx context.Context) <-chan *Snapshot {
	ch := make(chan *Snapshot, 1)

	o.mu.Lock()
	o.subs[ch] = struct{}{}
	if o.latest != nil {
		ch <- o.latest
	}
	o.mu.Unlock()
	o.signalSubs()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		delete(o.subs, ch)
		close(ch)
		o.mu.Unlock()
		o.signalSubs()
	}()
	return ch
}

// Refresh forces a load regardless of subscribers and waits for it. A load
// already in flight does not count; the request is served by the next one.
func (o *Orchestrator) Refresh(ctx context.Context) (*Snapshot, error) {
	req := &refreshRequest{done: make(chan loadResult, 1)}
	select {
	case o.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.snap, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Latest returns the most recently published snapshot, or nil.
func (o *Orchestrator) Latest() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest
}

// LastError returns the error of the most recent load, or nil when it
// succeeded.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}
