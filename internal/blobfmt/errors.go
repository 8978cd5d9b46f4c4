package blobfmt

import (
	"errors"
	"fmt"
)

// Sentinel errors for blob decoding.
var (
	// ErrTooSmall is returned when the buffer cannot hold both fixed headers.
	ErrTooSmall = errors.New("blobfmt: blob too small")

	// ErrInconsistentHeaderLength is returned when the declared header length
	// is shorter than the fixed Vulkan header fields.
	ErrInconsistentHeaderLength = errors.New("blobfmt: header length shorter than fixed header")

	// ErrUnsupportedVendor is returned for blobs written by another vendor.
	ErrUnsupportedVendor = errors.New("blobfmt: unsupported vendor")

	// ErrTruncatedEntryHeader is returned when the blob ends inside an entry header.
	ErrTruncatedEntryHeader = errors.New("blobfmt: truncated entry header")

	// ErrPayloadOverrunsBuffer is returned when an entry declares more payload
	// bytes than remain in the blob.
	ErrPayloadOverrunsBuffer = errors.New("blobfmt: entry payload overruns buffer")
)

// NoEntry 标记与具体条目无关的错误（头部错误）。
const NoEntry = -1

// FormatError 记录失败位置与原因，Err 始终是上面的哨兵错误之一。
type FormatError struct {
	Err    error
	Offset int
	Entry  int
	Detail string
}

func (e *FormatError) Error() string {
	msg := e.Err.Error()
	if e.Entry != NoEntry {
		msg = fmt.Sprintf("%s: entry #%d at offset %d", msg, e.Entry, e.Offset)
	} else if e.Offset > 0 {
		msg = fmt.Sprintf("%s: offset %d", msg, e.Offset)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func headerError(sentinel error, offset int, detail string) error {
	return &FormatError{Err: sentinel, Offset: offset, Entry: NoEntry, Detail: detail}
}

func entryError(sentinel error, entry, offset int, detail string) error {
	return &FormatError{Err: sentinel, Offset: offset, Entry: entry, Detail: detail}
}

// IsStructural 判断错误是否代表“内容确定不是合法缓存”，区别于输入过小。
func IsStructural(err error) bool {
	return errors.Is(err, ErrInconsistentHeaderLength) ||
		errors.Is(err, ErrUnsupportedVendor) ||
		errors.Is(err, ErrTruncatedEntryHeader) ||
		errors.Is(err, ErrPayloadOverrunsBuffer)
}

// Kind 返回用于日志与 JSON 输出的错误分类名，未知错误返回 "unknown"。
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTooSmall):
		return "too_small"
	case errors.Is(err, ErrInconsistentHeaderLength):
		return "inconsistent_header_length"
	case errors.Is(err, ErrUnsupportedVendor):
		return "unsupported_vendor"
	case errors.Is(err, ErrTruncatedEntryHeader):
		return "truncated_entry_header"
	case errors.Is(err, ErrPayloadOverrunsBuffer):
		return "payload_overruns_buffer"
	default:
		return "unknown"
	}
}
