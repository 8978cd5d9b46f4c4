// Package report 把解析流水线的输出渲染为面向终端的文本报告。
package report

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/inspect"
	"github.com/any-hub/cache-info/internal/vendors"
)

// Text 是逐条写出报告的 inspect.Sink。写入失败会被记录并使后续输出静默，
// 通过 Err 取回。
type Text struct {
	w   io.Writer
	err error
}

// NewText 创建写往 w 的文本渲染器。
func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

// Err 返回首个写入错误。
func (t *Text) Err() error {
	return t.err
}

func (t *Text) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *Text) Primary(_ int, h *blobfmt.Header) {
	p := h.Primary
	t.printf("\n=== Vulkan Pipeline Cache Header ===\n")
	t.printf("header length:\t\t%d\n", p.HeaderLength)
	t.printf("header version:\t\t%d\n", p.HeaderVersion)
	t.printf("vendor ID:\t\t0x%x (%s)\n", p.VendorID, vendors.Name(p.VendorID))
	t.printf("device ID:\t\t0x%x\n", p.DeviceID)
	t.printf("pipeline cache UUID:\t%s\n", inspect.FormatUUID(p.UUID))
	t.printf("trailing space:\t\t%d\n", h.TrailingSpace)
}

func (t *Text) Private(h *blobfmt.Header) {
	t.printf("\n=== Pipeline Binary Cache Private Header ===\n")
	t.printf("header length:\t%d\n", blobfmt.PrivateHeaderSize)
	t.printf("hash ID:\t%s\n", FormatBytes(h.Private.HashID[:]))
	t.printf("\n=== Cache Blob Info ===\n")
	t.printf("content size:\t%d\n", h.ContentSize)
}

func (t *Text) Entry(r inspect.EntryReport) {
	t.printf("\n\t*** Entry %d ***\n", r.Index)
	t.printf("\thash ID:\t%s\n", FormatBytes(r.RawHashID[:]))
	t.printf("\tdata size:\t%d\n", r.DataSize)
	t.printf("\tMD5 sum:\t%s\n", r.MD5)
	if !r.Correlated {
		return
	}
	if r.Matched {
		t.printf("\tsource elf:\t%s\n", r.SourcePath)
	} else {
		t.printf("\tno matching source found\n")
	}
}

// Finish 只在成功时输出总数，失败由调用方写入诊断流。
func (t *Text) Finish(count int, err error) {
	if err != nil {
		return
	}
	t.printf("\nTotal num entries:\t%d\n", count)
}

// FormatBytes 以 "[a0a1a2a3 a4a5a6a7 ...]" 的形式输出字节，每 4 字节一组。
func FormatBytes(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < len(b); i += 4 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		end := min(i+4, len(b))
		sb.WriteString(hex.EncodeToString(b[i:end]))
	}
	sb.WriteByte(']')
	return sb.String()
}
