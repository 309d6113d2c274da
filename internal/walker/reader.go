// Package walker implements the Reader & Navigator (spec §4.8): file-level
// reconstruction from chunks plus graph traversal primitives layered on top
// of a snapshot's stored chunks and edges.
package walker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codegraph/internal/store"
)

// Reader provides manifest-backed directory listing and chunk-reconstructed
// file reads over one snapshot.
type Reader struct {
	store store.Store
}

// NewReader creates a Reader over s.
func NewReader(s store.Store) *Reader {
	return &Reader{store: s}
}

// FileRead is the result of reading a file (or a line range of it).
type FileRead struct {
	Path      string
	Content   string
	StartLine int
	EndLine   int
}

// ReadFile reconstructs path's text by concatenating its chunks in byte
// order, or returns its stored content directly when parsing was skipped or
// failed (spec §4.8). startLine/endLine of 0 mean "unbounded" on that side.
func (r *Reader) ReadFile(ctx context.Context, snapshotID, path string, startLine, endLine int) (*FileRead, error) {
	file, err := r.store.FileByPath(ctx, snapshotID, path)
	if err != nil {
		return nil, err
	}

	chunks, err := r.store.ChunksByFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}

	var full string
	if len(chunks) == 0 {
		content, err := r.store.ContentByHash(ctx, file.BlobHash)
		if err == nil {
			full = content.Text
		}
	} else {
		var b strings.Builder
		for _, c := range chunks {
			content, err := r.store.ContentByHash(ctx, c.ContentHash)
			if err != nil {
				return nil, fmt.Errorf("read chunk content %s: %w", c.ID, err)
			}
			b.WriteString(content.Text)
		}
		full = b.String()
	}

	return sliceLines(path, full, startLine, endLine), nil
}

func sliceLines(path, full string, startLine, endLine int) *FileRead {
	if startLine <= 0 && endLine <= 0 {
		return &FileRead{Path: path, Content: full, StartLine: 1, EndLine: lineCount(full)}
	}
	lines := strings.Split(full, "\n")
	total := len(lines)
	start := startLine
	if start <= 0 {
		start = 1
	}
	end := endLine
	if end <= 0 || end > total {
		end = total
	}
	if start > total {
		return &FileRead{Path: path, Content: "", StartLine: start, EndLine: end}
	}
	return &FileRead{
		Path:      path,
		Content:   strings.Join(lines[start-1:end], "\n"),
		StartLine: start,
		EndLine:   end,
	}
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// DirEntry is one manifest entry returned by ListDirectory/FindDirectories.
type DirEntry struct {
	Name string
	Type string // "dir" or "file"
	Path string
}

// ListDirectory reads path's immediate children from the snapshot's
// manifest, directories first, alphabetical within each group.
func (r *Reader) ListDirectory(ctx context.Context, snapshotID, path string) ([]DirEntry, error) {
	snap, err := r.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.Manifest == nil {
		return nil, nil
	}

	node := descend(snap.Manifest, path)
	if node == nil || node.Type != "dir" {
		return nil, nil
	}

	entries := make([]DirEntry, 0, len(node.Children))
	for _, c := range node.Children {
		childPath := strings.TrimPrefix(strings.TrimSuffix(path, "/")+"/"+c.Name, "/")
		entries = append(entries, DirEntry{Name: c.Name, Type: c.Type, Path: childPath})
	}
	sort.Slice(entries, func(i, j int) bool {
		if (entries[i].Type == "dir") != (entries[j].Type == "dir") {
			return entries[i].Type == "dir"
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// FindDirectories walks the manifest in memory for directory names
// containing pattern (case-insensitive substring match), up to limit
// results, sorted by path.
func (r *Reader) FindDirectories(ctx context.Context, snapshotID, pattern string, limit int) ([]string, error) {
	snap, err := r.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.Manifest == nil {
		return nil, nil
	}

	pattern = strings.ToLower(pattern)
	var found []string
	var walk func(node *store.ManifestNode, path string)
	walk = func(node *store.ManifestNode, path string) {
		for _, c := range node.Children {
			if len(found) >= limit {
				return
			}
			childPath := strings.TrimPrefix(path+"/"+c.Name, "/")
			if c.Type == "dir" {
				if strings.Contains(strings.ToLower(c.Name), pattern) {
					found = append(found, childPath)
				}
				walk(c, childPath)
			}
		}
	}
	walk(snap.Manifest, "")
	sort.Strings(found)
	return found, nil
}

func descend(root *store.ManifestNode, path string) *store.ManifestNode {
	current := root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		var next *store.ManifestNode
		for _, c := range current.Children {
			if c.Name == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		current = next
	}
	return current
}
