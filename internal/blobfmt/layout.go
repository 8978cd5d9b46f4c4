package blobfmt

import "fmt"

const (
	// AMDVendorID 是唯一可以解析的 PCI 厂商 ID。
	AMDVendorID uint32 = 0x1002

	// UUIDSize 为 pipelineCacheUUID 的字节数。
	UUIDSize = 16
	// PrimaryHeaderSize 是 Vulkan 缓存头的固定部分：4 个 u32 + UUID。
	PrimaryHeaderSize = 4*4 + UUIDSize
	// PrivateHashSize 是私有头中哈希标识的长度（SHA-1 摘要长度）。
	PrivateHashSize = 20
	// PrivateHeaderSize 是私有头的总长度。
	PrivateHeaderSize = PrivateHashSize
	// MinBlobSize 为两个固定头长度之和，小于该值的输入不可能是合法缓存。
	MinBlobSize = PrimaryHeaderSize + PrivateHeaderSize

	// EntryHashSize 是条目头中 128 位哈希标识的长度。
	EntryHashSize = 16
)

const defaultSizeFieldWidth = 4

// Layout 描述条目头中可随驱动版本变化的部分。零值等价于 DefaultLayout。
type Layout struct {
	// SizeFieldWidth 是 dataSize 字段的字节数：4（u32）或 8（64 位 size_t）。
	SizeFieldWidth int
}

// DefaultLayout 返回 u32 dataSize 的条目布局。
func DefaultLayout() Layout {
	return Layout{SizeFieldWidth: defaultSizeFieldWidth}
}

// Validate 拒绝无法解析的字段宽度。
func (l Layout) Validate() error {
	switch l.SizeFieldWidth {
	case 0, 4, 8:
		return nil
	default:
		return fmt.Errorf("blobfmt: unsupported size field width %d (want 4 or 8)", l.SizeFieldWidth)
	}
}

// EntryHeaderSize 返回单个条目头的字节数。
func (l Layout) EntryHeaderSize() int {
	return EntryHashSize + l.sizeFieldWidth()
}

func (l Layout) sizeFieldWidth() int {
	if l.SizeFieldWidth == 8 {
		return 8
	}
	return defaultSizeFieldWidth
}
