package storage

import (
	"context"

	"phonograph/internal/library"
)

type watcher struct {
	wake    chan struct{}
	pending map[library.ChangeKind]uint64
}

// Version returns the current change version of kind.
func (s *SQLiteStorage) Version(kind library.ChangeKind) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[kind]
}

// NotifyChanged bumps the version of kind and wakes every watcher.
func (s *SQLiteStorage) NotifyChanged(kind library.ChangeKind) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[kind]++
	v := s.versions[kind]
	for w := range s.watchers {
		w.pending[kind] = v
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return v
}

// Watch streams change notifications until ctx is done. The current version
// of every kind is sent first. A slow reader only sees the newest version
// of each kind.
func (s *SQLiteStorage) Watch(ctx context.Context) <-chan library.Change {
	w := &watcher{
		wake:    make(chan struct{}, 1),
		pending: make(map[library.ChangeKind]uint64, len(s.versions)),
	}
	s.mu.Lock()
	for kind, v := range s.versions {
		w.pending[kind] = v
	}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()
	w.wake <- struct{}{}

	out := make(chan library.Change)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			}
			for _, c := range s.drain(w) {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *SQLiteStorage) drain(w *watcher) []library.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := make([]library.Change, 0, len(w.pending))
	for _, kind := range []library.ChangeKind{library.ChangeAudio, library.ChangePlaylists} {
		if v, ok := w.pending[kind]; ok {
			changes = append(changes, library.Change{Kind: kind, Version: v})
			delete(w.pending, kind)
		}
	}
	return changes
}
