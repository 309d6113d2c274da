package collector

// FileCategory mirrors store.FileCategory without importing the storage
// package, so the collector stays usable independent of persistence.
type FileCategory string

const (
	CategorySource FileCategory = "source"
	CategoryTest   FileCategory = "test"
	CategoryConfig FileCategory = "config"
	CategoryDocs   FileCategory = "docs"
)

// FileDescriptor is one file surviving the collection funnel.
type FileDescriptor struct {
	RelPath   string
	FullPath  string
	Extension string
	Size      int64
	GitHash   string // empty if untracked
	Category  FileCategory
}

// IsTracked reports whether Git produced a blob hash for this file.
func (f FileDescriptor) IsTracked() bool { return f.GitHash != "" }

// SupportedExtensions is the indexable allow-list (spec §6), without the
// leading dot.
var SupportedExtensions = map[string]bool{
	"py": true, "js": true, "jsx": true, "ts": true, "tsx": true,
	"java": true, "go": true, "rs": true, "c": true, "cc": true,
	"cpp": true, "h": true, "hpp": true, "cs": true, "php": true,
	"rb": true, "kt": true, "scala": true, "vue": true, "svelte": true,
	"css": true, "scss": true, "html": true, "json": true, "yaml": true,
	"yml": true, "toml": true, "xml": true, "sql": true, "md": true, "rst": true,
}

// BlocklistDirs is the fixed set of path components skipped regardless of
// extension (spec §6).
var BlocklistDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true, ".idea": true, ".vscode": true,
	"node_modules": true, "venv": true, ".venv": true, "env": true,
	"dist": true, "build": true, "target": true, "out": true, "bin": true,
	"__pycache__": true, "coverage": true, ".pytest_cache": true,
	"vendor": true, "third_party": true,
}

// MaxFileSize is the per-file hard cap (spec §6).
const MaxFileSize = 1024 * 1024
