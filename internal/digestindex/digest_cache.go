package digestindex

import (
	"bytes"
	"context"
	_ "crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/cache"
)

const digestNamespace = "md5"

// DigestCache 把源文件摘要持久化到 cache.Store，文件大小与修改时间不变时直接复用。
// nil *DigestCache 是合法的空缓存。
type DigestCache struct {
	store  cache.Store
	logger logrus.FieldLogger
}

type digestRecord struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time_unix_nano"`
	MD5     string `json:"md5"`
}

// NewDigestCache 基于 store 构造摘要缓存。
func NewDigestCache(store cache.Store, logger logrus.FieldLogger) *DigestCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DigestCache{store: store, logger: logger}
}

// Lookup 返回仍然有效的缓存摘要。记录损坏时会被删除。
func (c *DigestCache) Lookup(ctx context.Context, path string, info fs.FileInfo) (blobfmt.Digest, bool) {
	var d blobfmt.Digest
	if c == nil || c.store == nil {
		return d, false
	}

	locator := recordLocator(path)
	res, err := c.store.Get(ctx, locator)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.WithField("path", path).Debugf("读取摘要缓存失败: %v", err)
		}
		return d, false
	}
	defer res.Reader.Close()

	var rec digestRecord
	raw, err := io.ReadAll(res.Reader)
	if err == nil {
		err = json.Unmarshal(raw, &rec)
	}
	if err == nil {
		d, err = blobfmt.ParseDigest(rec.MD5)
	}
	if err != nil {
		c.logger.WithField("path", path).Debugf("摘要缓存记录损坏，已删除: %v", err)
		_ = c.store.Remove(ctx, locator)
		return blobfmt.Digest{}, false
	}

	if rec.Path != path || rec.Size != info.Size() || rec.ModTime != info.ModTime().UnixNano() {
		return blobfmt.Digest{}, false
	}
	return d, true
}

// Remember 写入摘要记录；失败仅记录日志，不影响扫描结果。
func (c *DigestCache) Remember(ctx context.Context, path string, info fs.FileInfo, d blobfmt.Digest) {
	if c == nil || c.store == nil {
		return
	}
	rec := digestRecord{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		MD5:     d.String(),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if _, err := c.store.Put(ctx, recordLocator(path), bytes.NewReader(body), cache.PutOptions{ModTime: time.Now().UTC()}); err != nil {
		c.logger.WithField("path", path).Debugf("写入摘要缓存失败: %v", err)
	}
}

// recordLocator 以路径的 sha256 作为键，并按前两位分目录。
func recordLocator(path string) cache.Locator {
	key := digest.FromString(path).Encoded()
	return cache.Locator{Namespace: digestNamespace, Key: key[:2] + "/" + key}
}
