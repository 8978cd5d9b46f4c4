package blobfmt

import (
	"encoding/binary"
	"fmt"
)

// PrimaryHeader 对应 VkPipelineCacheHeaderVersionOne 的固定字段。
type PrimaryHeader struct {
	HeaderLength  uint32
	HeaderVersion uint32
	VendorID      uint32
	DeviceID      uint32
	UUID          [UUIDSize]byte
}

// PrivateHeader 是驱动私有头，仅携带缓存哈希算法标识。
type PrivateHeader struct {
	HashID [PrivateHashSize]byte
}

// Header 汇总两级头部的解码结果以及条目列表的起始位置。
type Header struct {
	Primary PrimaryHeader
	Private PrivateHeader

	// TrailingSpace 是 HeaderLength 超出固定字段的厂商填充，只跳过不解析。
	TrailingSpace int
	// EntriesOffset 是第一个条目头所在的偏移。
	EntriesOffset int
	// ContentSize = len(blob) - EntriesOffset，仅用于展示，不参与边界检查。
	ContentSize int
}

// DecodeHeader 校验并解码 blob 开头的两级头部。
//
// 主头解码成功但随后校验失败（声明长度不一致、厂商不匹配、填充越界）时，
// 返回的 Header 仍携带 Primary 与 TrailingSpace，便于调用方输出诊断信息；
// 此时 EntriesOffset 为 0。
func DecodeHeader(blob []byte) (*Header, error) {
	if len(blob) < MinBlobSize {
		return nil, headerError(ErrTooSmall, 0, fmt.Sprintf("%d B < %d B", len(blob), MinBlobSize))
	}

	h := &Header{Primary: decodePrimary(blob[:PrimaryHeaderSize])}

	trailing := int64(h.Primary.HeaderLength) - PrimaryHeaderSize
	h.TrailingSpace = int(trailing)
	if trailing < 0 {
		return h, headerError(ErrInconsistentHeaderLength, 0,
			fmt.Sprintf("header length %d < %d", h.Primary.HeaderLength, PrimaryHeaderSize))
	}

	if h.Primary.VendorID != AMDVendorID {
		return h, headerError(ErrUnsupportedVendor, 8,
			fmt.Sprintf("vendor ID 0x%x, want 0x%x", h.Primary.VendorID, AMDVendorID))
	}

	privateOffset := int64(PrimaryHeaderSize) + trailing
	if privateOffset+PrivateHeaderSize > int64(len(blob)) {
		return h, headerError(ErrTooSmall, int(privateOffset),
			fmt.Sprintf("trailing space %d leaves no room for the %d B private header in %d B", trailing, PrivateHeaderSize, len(blob)))
	}

	start := int(privateOffset)
	copy(h.Private.HashID[:], blob[start:start+PrivateHashSize])

	h.EntriesOffset = start + PrivateHeaderSize
	h.ContentSize = len(blob) - h.EntriesOffset
	return h, nil
}

func decodePrimary(buf []byte) PrimaryHeader {
	p := PrimaryHeader{
		HeaderLength:  binary.LittleEndian.Uint32(buf[0:4]),
		HeaderVersion: binary.LittleEndian.Uint32(buf[4:8]),
		VendorID:      binary.LittleEndian.Uint32(buf[8:12]),
		DeviceID:      binary.LittleEndian.Uint32(buf[12:16]),
	}
	copy(p.UUID[:], buf[16:16+UUIDSize])
	return p
}

// Decoded 表示两级头部均已成功解码。
func (h *Header) Decoded() bool {
	return h != nil && h.EntriesOffset > 0
}
