package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewStore 以 basePath 为根目录构建摘要记录存储，目录不存在时自动创建。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("cache: digest cache path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve %s: %w", basePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", abs, err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[Locator]*recordLock),
	}, nil
}

// fileStore 把每条摘要记录存为独立文件。多个扫描 worker 可能同时刷新同一源文件的记录，
// 写入与删除按 Locator 串行化。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[Locator]*recordLock
}

// recordLock 在没有持有者后从 locks 中移除，避免长时间扫描时无限增长。
type recordLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.recordPath(locator)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	// 分桶目录与记录同名时视为未命中。
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	return &ReadResult{
		Entry: Entry{
			Locator:   locator,
			FilePath:  filePath,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		},
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	filePath, err := s.recordPath(locator)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(locator)
	defer unlock()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	// 先写临时文件再 rename，读者不会看到写了一半的 JSON。
	tmp, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return nil, err
	}
	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), filePath)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	return &Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}, nil
}

func (s *fileStore) Remove(_ context.Context, locator Locator) error {
	filePath, err := s.recordPath(locator)
	if err != nil {
		return err
	}

	unlock := s.lock(locator)
	defer unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) lock(locator Locator) func() {
	s.mu.Lock()
	l := s.locks[locator]
	if l == nil {
		l = &recordLock{}
		s.locks[locator] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, locator)
		}
		s.mu.Unlock()
	}
}

// recordPath 把 Locator 映射到 basePath/<Namespace>/<Key>。Key 先按 "/" 根清理，
// 因此 ".." 无法越出命名空间目录。
func (s *fileStore) recordPath(locator Locator) (string, error) {
	if locator.Namespace == "" || strings.ContainsAny(locator.Namespace, `/\.`) {
		return "", fmt.Errorf("cache: invalid namespace %q", locator.Namespace)
	}

	rel := strings.TrimPrefix(path.Clean("/"+locator.Key), "/")
	if rel == "" {
		return "", errors.New("cache: record key required")
	}

	root := filepath.Join(s.basePath, locator.Namespace)
	filePath := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, root+string(filepath.Separator)) {
		return "", fmt.Errorf("cache: key %q escapes namespace", locator.Key)
	}
	return filePath, nil
}

// contextReader 在每次读取前检查 ctx，使取消的扫描尽快放弃写入。
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
