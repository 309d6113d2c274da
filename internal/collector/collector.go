// Package collector streams classified, hash-tagged file descriptors out of
// a Git working tree, using Git's object index as the authoritative file
// list so that ignore rules are free.
package collector

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

// SourceCollector implements the four-stage funnel of spec §4.2: native
// enumeration, metadata filter, safety filter, classification.
type SourceCollector struct {
	repoRoot string
	log      *slog.Logger
}

// New creates a collector rooted at repoRoot, an absolute path to a Git
// working tree (bare mirror worktree, in the orchestrator's usage).
func New(repoRoot string, log *slog.Logger) *SourceCollector {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		abs = repoRoot
	}
	return &SourceCollector{repoRoot: abs, log: log}
}

// StreamFiles runs the collection funnel and returns batches of at most
// batchSize FileDescriptors. All batches are returned at once; each call
// runs the whole funnel again against the current working tree.
func (c *SourceCollector) StreamFiles(batchSize int) ([][]FileDescriptor, error) {
	if batchSize <= 0 {
		batchSize = 2000
	}

	seen := make(map[string]bool)
	var all []FileDescriptor

	tracked, err := c.lsFiles("-s", "-z", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("git ls-files -s: %w", err)
	}
	for _, entry := range splitNUL(tracked) {
		relPath, hash, ok := parseStagedEntry(entry)
		if !ok {
			continue
		}
		if fd, ok := c.validateAndBuild(relPath, hash); ok {
			seen[fd.RelPath] = true
			all = append(all, fd)
		}
	}

	untracked, err := c.lsFiles("-o", "-z", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("git ls-files -o: %w", err)
	}
	for _, entry := range splitNUL(untracked) {
		relPath := string(entry)
		if relPath == "" || seen[relPath] {
			continue // tracked wins over untracked at the same path
		}
		if fd, ok := c.validateAndBuild(relPath, ""); ok {
			all = append(all, fd)
		}
	}

	return batch(all, batchSize), nil
}

func (c *SourceCollector) lsFiles(args ...string) ([]byte, error) {
	cmd := exec.Command("git", append([]string{"-C", c.repoRoot, "ls-files"}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w", stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

func splitNUL(b []byte) [][]byte {
	var out [][]byte
	for _, entry := range bytes.Split(b, []byte{0}) {
		if len(entry) > 0 {
			out = append(out, entry)
		}
	}
	return out
}

// parseStagedEntry parses one `git ls-files -s -z` record:
// "<mode> <hash> <stage>\t<path>".
func parseStagedEntry(entry []byte) (relPath, hash string, ok bool) {
	tab := bytes.IndexByte(entry, '\t')
	if tab < 0 {
		return "", "", false
	}
	meta := bytes.Fields(entry[:tab])
	if len(meta) < 2 {
		return "", "", false
	}
	return string(entry[tab+1:]), string(meta[1]), true
}

// validateAndBuild applies stages 2-4 of the funnel: metadata filter,
// safety filter, classification.
func (c *SourceCollector) validateAndBuild(relPath, gitHash string) (FileDescriptor, bool) {
	relPath = filepath.ToSlash(relPath)
	ext := strings.TrimPrefix(path.Ext(relPath), ".")
	ext = strings.ToLower(ext)
	if !SupportedExtensions[ext] {
		return FileDescriptor{}, false
	}

	for _, part := range strings.Split(relPath, "/") {
		if BlocklistDirs[part] {
			return FileDescriptor{}, false
		}
	}

	fullPath := filepath.Join(c.repoRoot, filepath.FromSlash(relPath))
	info, err := os.Lstat(fullPath)
	if err != nil {
		c.log.Warn("lstat failed, dropping file", "path", relPath, "error", err)
		return FileDescriptor{}, false
	}
	if !info.Mode().IsRegular() {
		return FileDescriptor{}, false
	}
	if info.Size() == 0 || info.Size() > MaxFileSize {
		return FileDescriptor{}, false
	}

	return FileDescriptor{
		RelPath:   relPath,
		FullPath:  fullPath,
		Extension: ext,
		Size:      info.Size(),
		GitHash:   gitHash,
		Category:  classify(relPath, ext),
	}, true
}

// classify assigns category by path heuristics in the spec's precedence
// order: docs, test, config, else source.
func classify(relPath, ext string) FileCategory {
	lower := strings.ToLower(relPath)
	parts := strings.Split(lower, "/")
	name := parts[len(parts)-1]

	if containsAny(parts, "docs", "documentation") || ext == "md" || ext == "rst" {
		return CategoryDocs
	}

	if containsAny(parts, "tests", "__tests__", "spec") ||
		strings.HasPrefix(name, "test_") ||
		matchesSuffixPattern(name, "_test.") ||
		matchesSuffixPattern(name, ".spec.") {
		return CategoryTest
	}

	switch name {
	case "package.json", "pyproject.toml", "dockerfile", "makefile":
		return CategoryConfig
	}
	switch ext {
	case "yml", "yaml", "toml":
		return CategoryConfig
	}

	return CategorySource
}

func containsAny(parts []string, candidates ...string) bool {
	for _, p := range parts {
		for _, c := range candidates {
			if p == c {
				return true
			}
		}
	}
	return false
}

// matchesSuffixPattern reports whether name contains infix as a dotted or
// underscored segment boundary, approximating the glob patterns
// `*_test.*` / `*.spec.*` from spec §4.2.
func matchesSuffixPattern(name, infix string) bool {
	idx := strings.Index(name, infix)
	return idx > 0 && idx+len(infix) < len(name)
}

func batch(files []FileDescriptor, size int) [][]FileDescriptor {
	if len(files) == 0 {
		return nil
	}
	var batches [][]FileDescriptor
	for i := 0; i < len(files); i += size {
		end := i + size
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[i:end])
	}
	return batches
}
