package digestindex

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/cache"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestBuildIndexesMatchingFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "vs.elf"), []byte("vertex shader"))
	writeFile(t, filepath.Join(root, "nested", "deeper", "fs.elf"), []byte("fragment shader"))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("vertex shader"))

	idx, err := Build(context.Background(), root, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	path, ok := idx.Lookup(blobfmt.SumDigest([]byte("fragment shader")))
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "nested", "deeper", "fs.elf"), path)

	_, ok = idx.Lookup(blobfmt.SumDigest([]byte("nothing")))
	assert.False(t, ok)

	stats := idx.Stats()
	assert.Equal(t, 2, stats.Candidates)
	assert.Equal(t, 2, stats.Indexed)
	assert.Zero(t, stats.Skipped)
}

func TestBuildCustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.elf"), []byte("a"))
	writeFile(t, filepath.Join(root, "b.bin"), []byte("b"))

	idx, err := Build(context.Background(), root, Options{Extensions: []string{".bin"}, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.Lookup(blobfmt.SumDigest([]byte("b")))
	assert.True(t, ok)
}

func TestBuildCollisionLastWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "same.elf"), []byte("identical"))
	writeFile(t, filepath.Join(root, "b", "same.elf"), []byte("identical"))

	idx, err := Build(context.Background(), root, Options{Workers: 2, Logger: quietLogger()})
	require.NoError(t, err)

	path, ok := idx.Lookup(blobfmt.SumDigest([]byte("identical")))
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "b", "same.elf"), path)

	collisions := idx.Collisions()
	require.Len(t, collisions, 1)
	assert.Equal(t, filepath.Join(root, "a", "same.elf"), collisions[0].Replaced)
	assert.Equal(t, 1, idx.Stats().Collisions)
}

func TestBuildSkipsUnreadableFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.elf"), []byte("ok"))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing-target"), filepath.Join(root, "broken.elf")))

	idx, err := Build(context.Background(), root, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 1, idx.Stats().Skipped)
}

func TestBuildMissingRoot(t *testing.T) {
	_, err := Build(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{Logger: quietLogger()})
	require.Error(t, err)
}

func TestBuildHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.elf"), []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, root, Options{Logger: quietLogger()})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNilIndexIsEmpty(t *testing.T) {
	var idx *Index
	_, ok := idx.Lookup(blobfmt.Digest{})
	assert.False(t, ok)
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.Collisions())
}

func TestResolveDir(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.elf")
	writeFile(t, file, []byte("x"))

	resolved, err := ResolveDir(root)
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, expected, resolved)

	_, err = ResolveDir(file)
	require.ErrorIs(t, err, ErrNotDirectory)

	_, err = ResolveDir(filepath.Join(root, "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = ResolveDir("  ")
	require.Error(t, err)
}

func TestResolveDirExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.Mkdir(filepath.Join(home, "elfs"), 0o755))

	resolved, err := ResolveDir("~/elfs")
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(filepath.Join(home, "elfs"))
	require.NoError(t, err)
	assert.Equal(t, expected, resolved)
}

func TestDigestCacheReusesUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src", "a.elf")
	writeFile(t, source, []byte("first"))

	store, err := cache.NewStore(filepath.Join(root, "digest-cache"))
	require.NoError(t, err)
	dc := NewDigestCache(store, quietLogger())
	opts := Options{Logger: quietLogger(), Cache: dc}

	idx, err := Build(context.Background(), filepath.Join(root, "src"), opts)
	require.NoError(t, err)
	assert.Zero(t, idx.Stats().CacheHits)

	idx, err = Build(context.Background(), filepath.Join(root, "src"), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Stats().CacheHits)
	_, ok := idx.Lookup(blobfmt.SumDigest([]byte("first")))
	assert.True(t, ok)

	// 内容与修改时间变化后必须重新计算。
	writeFile(t, source, []byte("second!"))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(source, later, later))

	idx, err = Build(context.Background(), filepath.Join(root, "src"), opts)
	require.NoError(t, err)
	assert.Zero(t, idx.Stats().CacheHits)
	_, ok = idx.Lookup(blobfmt.SumDigest([]byte("second!")))
	assert.True(t, ok)
}

func TestDigestCacheDropsCorruptRecords(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "a.elf")
	writeFile(t, source, []byte("x"))
	info, err := os.Stat(source)
	require.NoError(t, err)

	store, err := cache.NewStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	dc := NewDigestCache(store, quietLogger())

	locator := recordLocator(source)
	_, err = store.Put(context.Background(), locator, strings.NewReader("not json"), cache.PutOptions{})
	require.NoError(t, err)

	_, ok := dc.Lookup(context.Background(), source, info)
	assert.False(t, ok)
	_, err = store.Get(context.Background(), locator)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestNilDigestCache(t *testing.T) {
	var dc *DigestCache
	_, ok := dc.Lookup(context.Background(), "/x", nil)
	assert.False(t, ok)
	dc.Remember(context.Background(), "/x", nil, blobfmt.Digest{})
}
