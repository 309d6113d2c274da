package collector

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// initRepo builds a small git working tree exercising every stage of the
// collection funnel: a tracked source file, an untracked source file, a
// file under a blocklisted directory, an unsupported extension, an empty
// file, and a symlink.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		require.NoErrorf(t, cmd.Run(), "git %v: %s", args, out.String())
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")

	write := func(rel, content string) {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	write("a.py", "def foo():\n    pass\n")
	run("add", "a.py")
	run("commit", "-q", "-m", "initial")

	write("b.py", "def bar():\n    pass\n") // untracked
	write("node_modules/dep.py", "ignored\n")
	write("notes.unsupported_ext", "whatever\n")
	write("empty.py", "")
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.py"), filepath.Join(dir, "link.py")))

	return dir
}

func TestStreamFiles_Funnel(t *testing.T) {
	dir := initRepo(t)
	c := New(dir, nil)
	batches, err := c.StreamFiles(10)
	require.NoError(t, err)

	var all []FileDescriptor
	for _, b := range batches {
		all = append(all, b...)
	}

	byPath := make(map[string]FileDescriptor)
	for _, fd := range all {
		byPath[fd.RelPath] = fd
	}

	require.Contains(t, byPath, "a.py")
	require.Contains(t, byPath, "b.py")
	require.True(t, byPath["a.py"].IsTracked())
	require.False(t, byPath["b.py"].IsTracked())

	require.NotContains(t, byPath, "node_modules/dep.py")
	require.NotContains(t, byPath, "notes.unsupported_ext")
	require.NotContains(t, byPath, "empty.py")
	require.NotContains(t, byPath, "link.py")
}

func TestStreamFiles_TrackedWinsOverUntrackedAtSamePath(t *testing.T) {
	// Spec §9's Open Question decision: tracked wins at a shared path. git
	// never lists an indexed path as untracked, so this checks that a
	// committed file is emitted exactly once and as tracked.
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		require.NoErrorf(t, cmd.Run(), "git %v: %s", args, out.String())
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("def foo():\n    pass\n"), 0o644))
	run("add", "a.py")
	run("commit", "-q", "-m", "initial")

	c := New(dir, nil)
	batches, err := c.StreamFiles(10)
	require.NoError(t, err)

	count := 0
	for _, b := range batches {
		for _, fd := range b {
			if fd.RelPath == "a.py" {
				count++
				require.True(t, fd.IsTracked())
			}
		}
	}
	require.Equal(t, 1, count)
}

func TestClassify_Precedence(t *testing.T) {
	cases := []struct {
		path string
		ext  string
		want FileCategory
	}{
		{"docs/readme.md", "md", CategoryDocs},
		{"src/readme.rst", "rst", CategoryDocs},
		{"tests/test_foo.py", "py", CategoryTest},
		{"src/foo_test.go", "go", CategoryTest},
		{"src/foo.spec.ts", "ts", CategoryTest},
		{"package.json", "json", CategoryConfig},
		{"config/settings.yaml", "yaml", CategoryConfig},
		{"src/main.go", "go", CategorySource},
	}
	for _, tc := range cases {
		got := classify(tc.path, tc.ext)
		require.Equalf(t, tc.want, got, "classify(%q, %q)", tc.path, tc.ext)
	}
}

func TestValidateAndBuild_RejectsBlocklistAndUnsupportedExt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vendor"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor", "lib.go"), []byte("package lib\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi\n"), 0o644))

	c := New(dir, nil)
	_, ok := c.validateAndBuild("vendor/lib.go", "")
	require.False(t, ok)
	_, ok = c.validateAndBuild("readme.txt", "")
	require.False(t, ok)
}

func TestValidateAndBuild_OversizeFileRejected(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, MaxFileSize+1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.py"), big, 0o644))

	c := New(dir, nil)
	_, ok := c.validateAndBuild("big.py", "")
	require.False(t, ok)
}
