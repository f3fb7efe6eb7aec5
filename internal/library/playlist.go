package library

// Resolve joins the playlist's song ids against idMap, keeping the stored
// order. Ids missing from idMap are dropped and returned separately; the
// media index is known to keep stale playlist members around.
func (r RawPlaylist) Resolve(idMap map[int64]*Song) (*Playlist, []int64) {
	pl := &Playlist{
		ID:    copyID(r.ID),
		Title: r.Title,
		Songs: make([]*Song, 0, len(r.SongIDs)),
	}
	var missing []int64
	for _, id := range r.SongIDs {
		song, ok := idMap[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		pl.Songs = append(pl.Songs, song)
	}
	return pl, missing
}

// ResolvePlaylists resolves every raw playlist against idMap. onMissing, if
// not nil, is called for each member id that could not be resolved.
func ResolvePlaylists(raw []RawPlaylist, idMap map[int64]*Song, onMissing func(playlist RawPlaylist, songID int64)) []*Playlist {
	out := make([]*Playlist, 0, len(raw))
	for _, r := range raw {
		pl, missing := r.Resolve(idMap)
		if onMissing != nil {
			for _, id := range missing {
				onMissing(r, id)
			}
		}
		out = append(out, pl)
	}
	return out
}
