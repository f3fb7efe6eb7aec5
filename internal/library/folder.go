package library

import "strings"

// FolderNode is a directory in the folder tree. AlbumID holds the album id
// shared by every song attached directly to this node; it becomes nil for
// good once a song from a different album is attached.
type FolderNode struct {
	Name    string                 `json:"name"`
	Folders map[string]*FolderNode `json:"folders,omitempty"`
	Songs   []*Song                `json:"-"`

	albumID *int64
	mixed   bool
}

func NewFolderNode(name string) *FolderNode {
	return &FolderNode{
		Name:    name,
		Folders: make(map[string]*FolderNode),
	}
}

// AlbumID returns the single album of this folder, or nil when the folder
// is empty, mixed, or holds only songs without an album.
func (n *FolderNode) AlbumID() *int64 {
	return n.albumID
}

// SingleAlbum reports whether every song attached so far shares one album
// id. Songs without an album count as one album.
func (n *FolderNode) SingleAlbum() bool {
	return len(n.Songs) > 0 && !n.mixed
}

// AddSong attaches a song and updates the single-album tracking.
func (n *FolderNode) AddSong(song *Song, albumID *int64) {
	switch {
	case n.mixed:
	case len(n.Songs) == 0:
		n.albumID = copyID(albumID)
	case !eqPtr(n.albumID, albumID):
		n.albumID = nil
		n.mixed = true
	}
	n.Songs = append(n.Songs, song)
}

// Descend walks path components excluding the file name, creating nodes
// as needed, and returns the node of the file's directory.
func (n *FolderNode) Descend(path string) *FolderNode {
	parts := splitPath(path)
	node := n
	for _, name := range parts[:len(parts)-1] {
		child, ok := node.Folders[name]
		if !ok {
			child = NewFolderNode(name)
			node.Folders[name] = child
		}
		node = child
	}
	return node
}

// AddShallow attaches the song to a one-level child named after its
// immediate parent folder. It returns false when the path has no parent.
func (n *FolderNode) AddShallow(song *Song, albumID *int64, path string) bool {
	parts := splitPath(path)
	if len(parts) < 2 {
		return false
	}
	name := parts[len(parts)-2]
	child, ok := n.Folders[name]
	if !ok {
		child = NewFolderNode(name)
		n.Folders[name] = child
	}
	child.AddSong(song, albumID)
	return true
}

// Walk visits the node and all descendants depth-first.
func (n *FolderNode) Walk(fn func(path []string, node *FolderNode)) {
	n.walk(nil, fn)
}

func (n *FolderNode) walk(prefix []string, fn func([]string, *FolderNode)) {
	fn(prefix, n)
	for name, child := range n.Folders {
		child.walk(append(prefix[:len(prefix):len(prefix)], name), fn)
	}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	return strings.Split(path, "/")
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
