package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func added(id, at int64) *Song {
	return &Song{ID: id, DateAdded: ptr(at)}
}

func TestRecentlyAddedCutoff(t *testing.T) {
	songs := []*Song{added(1, 100), added(2, 300), {ID: 3}, added(4, 200), added(5, 300)}
	r := NewRecentlyAdded(songs, 200)

	assert.Equal(t, []int64{2, 5, 4}, songIDs(r.Songs()))

	r.SetCutoff(250)
	assert.Equal(t, []int64{2, 5}, songIDs(r.Songs()))

	r.SetCutoff(0)
	assert.Equal(t, []int64{2, 5, 4, 1}, songIDs(r.Songs()))

	r.SetCutoff(1000)
	assert.Empty(t, r.Songs())
	assert.Equal(t, int64(1000), r.Cutoff())
}

func TestRecentlyAddedDoesNotShareBacking(t *testing.T) {
	songs := []*Song{added(1, 10), added(2, 20)}
	r := NewRecentlyAdded(songs, 0)

	got := r.Songs()
	got[0] = nil
	assert.Equal(t, []int64{2, 1}, songIDs(r.Songs()))
	assert.Equal(t, int64(1), songs[0].ID)
}

func TestRecentlyAddedPlaylist(t *testing.T) {
	r := NewRecentlyAdded([]*Song{added(1, 10)}, 5)
	pl := r.Playlist()
	assert.Equal(t, RecentlyAddedID, *pl.ID)
	assert.Nil(t, pl.Title)
	assert.Equal(t, []int64{1}, songIDs(pl.Songs))
}

func TestRecentlyAddedEqual(t *testing.T) {
	a := NewRecentlyAdded([]*Song{added(1, 10), added(2, 20)}, 5)
	b := NewRecentlyAdded([]*Song{added(2, 20), added(1, 10)}, 5)
	c := NewRecentlyAdded([]*Song{added(1, 10), added(2, 20)}, 6)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	c.SetCutoff(5)
	assert.True(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}
