package inspect

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/any-hub/cache-info/internal/blobfmt"
)

// HeaderReport 是头部信息的可序列化形式。
type HeaderReport struct {
	HeaderLength  uint32 `json:"header_length"`
	HeaderVersion uint32 `json:"header_version"`
	VendorID      string `json:"vendor_id"`
	DeviceID      string `json:"device_id"`
	UUID          string `json:"pipeline_cache_uuid"`
	TrailingSpace int    `json:"trailing_space"`
	// 以下字段仅在私有头解码成功后填充。
	PrivateHashID string `json:"private_hash_id,omitempty"`
	EntriesOffset int    `json:"entries_offset,omitempty"`
	ContentSize   int    `json:"content_size,omitempty"`
}

// Failure 描述首个失败。
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report 是一次解析的完整结果，供 JSON 接口与测试使用。
type Report struct {
	BlobSize   int           `json:"blob_size"`
	Header     *HeaderReport `json:"header,omitempty"`
	Entries    []EntryReport `json:"entries"`
	EntryCount int           `json:"entry_count"`
	Failure    *Failure      `json:"failure,omitempty"`
}

// Collector 是把结果收集进 Report 的 Sink。
type Collector struct {
	report Report
}

// NewCollector 创建空的收集器。
func NewCollector() *Collector {
	return &Collector{report: Report{Entries: []EntryReport{}}}
}

func (c *Collector) Primary(blobSize int, h *blobfmt.Header) {
	c.report.BlobSize = blobSize
	c.report.Header = &HeaderReport{
		HeaderLength:  h.Primary.HeaderLength,
		HeaderVersion: h.Primary.HeaderVersion,
		VendorID:      fmt.Sprintf("0x%x", h.Primary.VendorID),
		DeviceID:      fmt.Sprintf("0x%x", h.Primary.DeviceID),
		UUID:          FormatUUID(h.Primary.UUID),
		TrailingSpace: h.TrailingSpace,
	}
}

func (c *Collector) Private(h *blobfmt.Header) {
	if c.report.Header == nil {
		return
	}
	c.report.Header.PrivateHashID = hex.EncodeToString(h.Private.HashID[:])
	c.report.Header.EntriesOffset = h.EntriesOffset
	c.report.Header.ContentSize = h.ContentSize
}

func (c *Collector) Entry(r EntryReport) {
	c.report.Entries = append(c.report.Entries, r)
}

func (c *Collector) Finish(count int, err error) {
	c.report.EntryCount = count
	if err != nil {
		c.report.Failure = &Failure{Kind: Classify(err), Message: err.Error()}
	}
}

// Report 返回收集到的结果。
func (c *Collector) Report() *Report {
	return &c.report
}

// Run 运行 Inspect 并返回完整 Report。
func Run(blob []byte, opts Options) (*Report, error) {
	c := NewCollector()
	err := Inspect(blob, opts, c)
	return c.Report(), err
}

// FormatUUID 以 8-4-4-4-12 形式输出 pipelineCacheUUID。
func FormatUUID(raw [blobfmt.UUIDSize]byte) string {
	return uuid.UUID(raw).String()
}

// Classify 返回错误分类名，非格式错误归为 "invalid_options"。
func Classify(err error) string {
	kind := blobfmt.Kind(err)
	if kind == "unknown" {
		return "invalid_options"
	}
	return kind
}
