// Package digestindex 扫描候选源二进制目录，构建 MD5 → 路径 映射，
// 供条目遍历时把负载关联回编译产物。索引在 Build 返回后只读，可被多个 goroutine 共享。
package digestindex

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/cache-info/internal/blobfmt"
)

// ErrNotDirectory 表示 --elf-source-dir 指向的路径不是目录。
var ErrNotDirectory = errors.New("digestindex: not a directory")

const defaultWorkers = 4

// DefaultExtensions 为默认识别的源文件后缀。
var DefaultExtensions = []string{".elf"}

// Options 控制扫描行为。
type Options struct {
	// Extensions 为大小写敏感的文件后缀列表，空值使用 DefaultExtensions。
	Extensions []string
	// Workers 是并发计算摘要的文件数上限。
	Workers int
	Logger  logrus.FieldLogger
	// Cache 可选，命中时跳过未变化文件的重新计算。
	Cache *DigestCache
}

func (o Options) extensions() []string {
	if len(o.Extensions) == 0 {
		return DefaultExtensions
	}
	return o.Extensions
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return defaultWorkers
	}
	return o.Workers
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// Collision 记录两个源文件摘要相同的情况：后遍历到的 Kept 覆盖了 Replaced。
type Collision struct {
	Digest   blobfmt.Digest
	Kept     string
	Replaced string
}

// Stats 汇总一次扫描的结果，用于日志与诊断接口。
type Stats struct {
	Root       string `json:"root"`
	Candidates int    `json:"candidates"`
	Indexed    int    `json:"indexed"`
	Skipped    int    `json:"skipped"`
	Collisions int    `json:"collisions"`
	CacheHits  int    `json:"cache_hits"`
}

// Index 是只读的摘要 → 路径表。
type Index struct {
	root       string
	byDigest   map[blobfmt.Digest]string
	collisions []Collision
	stats      Stats
}

// Lookup 返回摘要对应的源文件路径；nil Index 视为空表。
func (i *Index) Lookup(d blobfmt.Digest) (string, bool) {
	if i == nil {
		return "", false
	}
	path, ok := i.byDigest[d]
	return path, ok
}

// Len 返回索引中的摘要数量。
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byDigest)
}

// Stats 返回扫描统计。
func (i *Index) Stats() Stats {
	if i == nil {
		return Stats{}
	}
	return i.stats
}

// Collisions 返回按遍历顺序记录的摘要冲突。
func (i *Index) Collisions() []Collision {
	if i == nil {
		return nil
	}
	return append([]Collision(nil), i.collisions...)
}

// ResolveDir 展开 ~、解析符号链接并确认路径是目录。
func ResolveDir(raw string) (string, error) {
	dir := strings.TrimSpace(raw)
	if dir == "" {
		return "", errors.New("digestindex: empty directory path")
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("digestindex: expand %s: %w", raw, err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("digestindex: resolve %s: %w", raw, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("digestindex: resolve %s: %w", raw, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("digestindex: stat %s: %w", resolved, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, resolved)
	}
	return resolved, nil
}

type hashResult struct {
	digest   blobfmt.Digest
	cacheHit bool
	err      error
}

// Build 递归扫描 root 并构建索引。
//
// 不可读的文件与子目录仅记录告警并跳过；root 本身不可读时返回错误。
// 摘要冲突时以遍历顺序中靠后的文件为准，冲突逐条记录，不做去重。
func Build(ctx context.Context, root string, opts Options) (*Index, error) {
	logger := opts.logger()

	candidates, skipped, err := collect(root, opts.extensions(), logger)
	if err != nil {
		return nil, err
	}

	results := make([]hashResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, path := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, hit, err := hashFile(gctx, path, opts.Cache)
			results[i] = hashResult{digest: d, cacheHit: hit, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := &Index{
		root:     root,
		byDigest: make(map[blobfmt.Digest]string, len(candidates)),
	}
	idx.stats = Stats{Root: root, Candidates: len(candidates), Skipped: skipped}

	for i, path := range candidates {
		res := results[i]
		if res.err != nil {
			idx.stats.Skipped++
			logger.WithFields(logrus.Fields{
				"action": "scan_source",
				"path":   path,
			}).Warnf("无法读取源文件，已跳过: %v", res.err)
			continue
		}
		if res.cacheHit {
			idx.stats.CacheHits++
		}
		if prev, exists := idx.byDigest[res.digest]; exists {
			idx.collisions = append(idx.collisions, Collision{Digest: res.digest, Kept: path, Replaced: prev})
			logger.WithFields(logrus.Fields{
				"action":   "scan_source",
				"md5":      res.digest.String(),
				"kept":     path,
				"replaced": prev,
			}).Warn("源文件摘要冲突，后者覆盖前者")
		}
		idx.byDigest[res.digest] = path
	}
	idx.stats.Indexed = len(idx.byDigest)
	idx.stats.Collisions = len(idx.collisions)
	return idx, nil
}

// collect 按 WalkDir 的字典序遍历，返回匹配后缀的文件以及被跳过的条目数。
func collect(root string, extensions []string, logger logrus.FieldLogger) ([]string, int, error) {
	var (
		candidates []string
		skipped    int
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			skipped++
			logger.WithFields(logrus.Fields{
				"action": "scan_source",
				"path":   path,
			}).Warnf("无法访问，已跳过: %v", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !hasExtension(path, extensions) {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("digestindex: walk %s: %w", root, err)
	}
	return candidates, skipped, nil
}

func hasExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func hashFile(ctx context.Context, path string, cache *DigestCache) (blobfmt.Digest, bool, error) {
	var d blobfmt.Digest

	info, err := os.Stat(path)
	if err != nil {
		return d, false, err
	}
	if info.IsDir() {
		return d, false, fmt.Errorf("%s is a directory", path)
	}
	if cached, ok := cache.Lookup(ctx, path, info); ok {
		return cached, true, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return d, false, err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return d, false, err
	}
	copy(d[:], h.Sum(nil))

	cache.Remember(ctx, path, info, d)
	return d, false, nil
}
