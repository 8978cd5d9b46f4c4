// Package inspect 把头部解码、条目遍历与摘要索引查询串成一条线性流水线，
// 每产出一条 EntryReport 立即交给 Sink，不在内部缓存。
package inspect

import (
	"encoding/hex"

	"github.com/any-hub/cache-info/internal/blobfmt"
)

// Resolver 按负载摘要查找源文件，digestindex.Index 满足该接口。
type Resolver interface {
	Lookup(blobfmt.Digest) (string, bool)
}

// Options 是一次解析的显式配置。
type Options struct {
	Layout blobfmt.Layout
	// Resolver 为 nil 时不做源文件关联。
	Resolver Resolver
}

// EntryReport 描述单个条目的诊断信息。
type EntryReport struct {
	Index    int    `json:"index"`
	Offset   int    `json:"offset"`
	HashID   string `json:"hash_id"`
	DataSize uint64 `json:"data_size"`
	MD5      string `json:"md5"`
	// RawHashID 是 HashID 的原始字节，供文本渲染按组输出。
	RawHashID [blobfmt.EntryHashSize]byte `json:"-"`
	// Correlated 表示本次解析提供了摘要索引，此时 Matched/SourcePath 才有意义。
	Correlated bool   `json:"correlated"`
	Matched    bool   `json:"matched"`
	SourcePath string `json:"source_path,omitempty"`
}

// Sink 接收流水线各阶段的输出，调用顺序与原始文件布局一致：
// Primary →（成功时）Private → Entry* → Finish。
type Sink interface {
	// Primary 在主头解码后立即调用，即使随后校验失败。
	Primary(blobSize int, h *blobfmt.Header)
	// Private 在两级头部全部通过校验后调用。
	Private(h *blobfmt.Header)
	Entry(r EntryReport)
	// Finish 总是最后调用，count 为已产出的条目数，err 为首个失败（成功时为 nil）。
	Finish(count int, err error)
}

// Inspect 解析 blob 并把结果推送给 sink，返回首个失败。
// 失败前已推送的条目不会被撤回。
func Inspect(blob []byte, opts Options, sink Sink) error {
	count, err := run(blob, opts, sink)
	sink.Finish(count, err)
	return err
}

func run(blob []byte, opts Options, sink Sink) (int, error) {
	if err := opts.Layout.Validate(); err != nil {
		return 0, err
	}

	h, err := blobfmt.DecodeHeader(blob)
	if h != nil {
		sink.Primary(len(blob), h)
	}
	if err != nil {
		return 0, err
	}
	sink.Private(h)

	count := 0
	for entry, err := range blobfmt.Entries(blob, h.EntriesOffset, opts.Layout) {
		if err != nil {
			return count, err
		}
		sink.Entry(newEntryReport(entry, opts.Resolver))
		count++
	}
	return count, nil
}

func newEntryReport(entry blobfmt.Entry, resolver Resolver) EntryReport {
	r := EntryReport{
		Index:    entry.Index,
		Offset:   entry.Offset,
		HashID:   hex.EncodeToString(entry.HashID[:]),
		DataSize: entry.DataSize,
		MD5:      entry.Digest.String(),

		RawHashID: entry.HashID,
	}
	if resolver != nil {
		r.Correlated = true
		r.SourcePath, r.Matched = resolver.Lookup(entry.Digest)
	}
	return r
}
