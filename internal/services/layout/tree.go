package layout

import (
	"path"
	"strings"
)

// FileEntry is a single file of a torrent listing, path relative and "/"-separated.
type FileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".m4a": {}, ".m4b": {}, ".aac": {}, ".flac": {}, ".ogg": {}, ".oga": {},
	".opus": {}, ".wma": {}, ".wav": {}, ".aif": {}, ".aiff": {}, ".ape": {}, ".mka": {},
	".mp2": {}, ".mp4": {}, ".alac": {}, ".wv": {},
}

// IsCue reports whether the path names a cue sheet sidecar.
func IsCue(p string) bool {
	return strings.EqualFold(path.Ext(p), ".cue")
}

// IsAudio reports whether the path has a known audio extension.
func IsAudio(p string) bool {
	_, ok := audioExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// NormalizePath converts client-reported paths to clean relative posix form.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	for strings.HasPrefix(p, "./") {
		p = strings.TrimLeft(p[2:], "/")
	}
	if p == "" {
		return ""
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	return cleaned
}

func splitPath(p string) ([]string, string) {
	p = NormalizePath(p)
	if p == "" {
		return nil, ""
	}
	parts := strings.Split(p, "/")
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// Node is a directory of a FileTree.
type Node struct {
	Name  string      `json:"name"`
	Dirs  []*Node     `json:"dirs,omitempty"`
	Files []FileEntry `json:"files,omitempty"`

	index map[string]*Node
}

// FileTree groups a flat listing into deduplicated directories.
type FileTree struct {
	Root *Node `json:"root"`
}

// BuildTree attaches every entry to its deepest directory. Children keep first-seen order.
func BuildTree(entries []FileEntry) *FileTree {
	root := newNode("")
	for _, e := range entries {
		dirs, name := splitPath(e.Path)
		if name == "" {
			continue
		}
		n := root
		for _, d := range dirs {
			n = n.child(d)
		}
		n.Files = append(n.Files, FileEntry{Path: NormalizePath(e.Path), Size: e.Size})
	}
	return &FileTree{Root: root}
}

func newNode(name string) *Node {
	return &Node{Name: name, index: make(map[string]*Node)}
}

func (n *Node) child(name string) *Node {
	if c, ok := n.index[name]; ok {
		return c
	}
	c := newNode(name)
	n.index[name] = c
	n.Dirs = append(n.Dirs, c)
	return c
}

// Lookup returns the direct subdirectory with the given name.
func (n *Node) Lookup(name string) (*Node, bool) {
	c, ok := n.index[name]
	return c, ok
}

// CountFiles counts files in n and all descendants that satisfy match.
func (n *Node) CountFiles(match func(string) bool) int {
	count := 0
	for _, f := range n.Files {
		if match(f.Path) {
			count++
		}
	}
	for _, d := range n.Dirs {
		count += d.CountFiles(match)
	}
	return count
}

// Entries flattens the subtree back into a listing in tree order.
func (n *Node) Entries() []FileEntry {
	out := append([]FileEntry(nil), n.Files...)
	for _, d := range n.Dirs {
		out = append(out, d.Entries()...)
	}
	return out
}

// CommonRoot returns the single top-level folder shared by every entry, or "".
func CommonRoot(entries []FileEntry) string {
	root := ""
	for _, e := range entries {
		dirs, name := splitPath(e.Path)
		if name == "" {
			continue
		}
		if len(dirs) == 0 {
			return ""
		}
		if root == "" {
			root = dirs[0]
			continue
		}
		if dirs[0] != root {
			return ""
		}
	}
	return root
}

// StripRoot removes root and the following separator from p.
func StripRoot(p, root string) string {
	p = NormalizePath(p)
	if root == "" {
		return p
	}
	if rest, ok := strings.CutPrefix(p, root+"/"); ok {
		return rest
	}
	return p
}
