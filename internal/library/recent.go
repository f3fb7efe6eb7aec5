package library

import (
	"slices"
	"sort"
	"sync"
)

// RecentlyAdded is a virtual playlist of songs added at or after a cutoff,
// newest first. The backing list is sorted once; moving the cutoff only
// re-slices it.
type RecentlyAdded struct {
	mu       sync.Mutex
	sorted   []*Song
	cutoff   int64
	filtered []*Song
	valid    bool
}

// NewRecentlyAdded sorts songs by descending add time. Songs without an add
// time sort last and never pass a cutoff.
func NewRecentlyAdded(songs []*Song, cutoff int64) *RecentlyAdded {
	sorted := slices.Clone(songs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return addedAt(sorted[i]) > addedAt(sorted[j])
	})
	return &RecentlyAdded{sorted: sorted, cutoff: cutoff}
}

func addedAt(s *Song) int64 {
	if s.DateAdded == nil {
		return -1 << 63
	}
	return *s.DateAdded
}

func (r *RecentlyAdded) Cutoff() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cutoff
}

// SetCutoff moves the minimum add timestamp. The view is recomputed on the
// next call to Songs.
func (r *RecentlyAdded) SetCutoff(cutoff int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cutoff != cutoff {
		r.cutoff = cutoff
		r.valid = false
	}
}

// Songs returns the songs added at or after the cutoff, newest first.
func (r *RecentlyAdded) Songs() []*Song {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.valid {
		n := sort.Search(len(r.sorted), func(i int) bool {
			s := r.sorted[i]
			return s.DateAdded == nil || *s.DateAdded < r.cutoff
		})
		r.filtered = r.sorted[:n:n]
		r.valid = true
	}
	return slices.Clone(r.filtered)
}

// Playlist returns a snapshot of the view as a playlist with the reserved id.
func (r *RecentlyAdded) Playlist() *Playlist {
	return &Playlist{ID: ptr(RecentlyAddedID), Songs: r.Songs()}
}

// Equal reports whether both views have the same backing songs and cutoff.
func (r *RecentlyAdded) Equal(o *RecentlyAdded) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	return r.Cutoff() == o.Cutoff() && sameSongs(r.sorted, o.sorted)
}
