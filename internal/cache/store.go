package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘记录的读写。磁盘布局遵循：
//
//	<basePath>/<Namespace>/<Key>
//
// 每条记录仅由正文文件组成，文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的记录。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 写入记录正文并返回新的 Entry。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除记录，记录损坏或过期时由调用方清理。
	Remove(ctx context.Context, locator Locator) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一条记录（命名空间 + 键），Key 不允许逃逸出命名空间目录。
type Locator struct {
	Namespace string
	Key       string
}

// Entry 描述一条已落盘的记录，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator   `json:"locator"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("cache entry not found")
