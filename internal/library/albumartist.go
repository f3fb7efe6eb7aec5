package library

// The most frequent artist needs at least minArtistShare percent of an
// album's songs before it is taken as the album artist.
const minArtistShare = 60

// AlbumArtistGuess is the result of album-artist inference.
type AlbumArtistGuess struct {
	Name string
	ID   *int64
}

type nameCount struct {
	name  *string
	count int
}

// countBy groups songs by a nullable string key and keeps first-seen order.
func countBy(songs []*Song, key func(*Song) *string) []nameCount {
	var groups []nameCount
	index := make(map[string]int)
	nullIdx := -1
	for _, s := range songs {
		k := key(s)
		if k == nil {
			if nullIdx < 0 {
				nullIdx = len(groups)
				groups = append(groups, nameCount{})
			}
			groups[nullIdx].count++
			continue
		}
		i, ok := index[*k]
		if !ok {
			i = len(groups)
			index[*k] = i
			groups = append(groups, nameCount{name: k})
		}
		groups[i].count++
	}
	return groups
}

// InferAlbumArtist guesses the album artist of one album from its songs.
// artistIDs maps artist names to the first artist id seen for them. The
// second return value is false when the data is contradictory or too weak.
func InferAlbumArtist(songs []*Song, artistIDs map[string]*int64) (AlbumArtistGuess, bool) {
	if len(songs) == 0 {
		return AlbumArtistGuess{}, false
	}

	groups := countBy(songs, func(s *Song) *string { return s.AlbumArtist })
	var tagged *nameCount
	untagged := 0
	for i := range groups {
		if groups[i].name == nil {
			untagged = groups[i].count
			continue
		}
		if tagged != nil {
			// two different album-artist tags on one album
			return AlbumArtistGuess{}, false
		}
		tagged = &groups[i]
	}

	if tagged != nil {
		if tagged.count < untagged {
			return AlbumArtistGuess{}, false
		}
		name := *tagged.name
		for _, s := range songs {
			if s.Artist != nil && *s.Artist == name && s.ArtistID != nil {
				return AlbumArtistGuess{Name: name, ID: copyID(s.ArtistID)}, true
			}
		}
		return AlbumArtistGuess{Name: name, ID: copyID(artistIDs[name])}, true
	}

	var top *nameCount
	artists := countBy(songs, func(s *Song) *string { return s.Artist })
	for i := range artists {
		if artists[i].name == nil {
			continue
		}
		if top == nil || artists[i].count > top.count {
			top = &artists[i]
		}
	}
	if top == nil || top.count*100 < len(songs)*minArtistShare {
		return AlbumArtistGuess{}, false
	}
	return AlbumArtistGuess{Name: *top.name, ID: copyID(artistIDs[*top.name])}, true
}
