package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/blobfmt/blobtest"
)

var repoRoot string

func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("无法定位项目根目录")
	}
	return repoRoot
}

func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "internal", "config", "testdata", name)
}

// twoEntryBlob 构造包含 0 字节与 37 字节负载的 AMD 缓存，返回 blob 与第二个负载。
func twoEntryBlob() ([]byte, []byte) {
	payload := make([]byte, 37)
	for i := range payload {
		payload[i] = byte(i*7 + 3)
	}
	blob := blobtest.NewBuilder(
		blobfmt.PrimaryHeader{HeaderLength: blobfmt.PrimaryHeaderSize, HeaderVersion: 1, VendorID: blobfmt.AMDVendorID},
		blobfmt.PrivateHeader{},
		blobfmt.DefaultLayout(),
	).
		AddEntry([blobfmt.EntryHashSize]byte{0}, nil).
		AddEntry([blobfmt.EntryHashSize]byte{1}, payload).
		Bytes()
	return blob, payload
}

func writeBlob(t *testing.T, blob []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.bin")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatalf("写入缓存文件失败: %v", err)
	}
	return path
}
