// Package blobtest 按解码器期望的布局拼装缓存 blob，供各包测试构造夹具。
package blobtest

import (
	"encoding/binary"

	"github.com/any-hub/cache-info/internal/blobfmt"
)

// Builder 不做任何校验：HeaderLength 小于固定长度、厂商不匹配等畸形输入都会原样写出。
type Builder struct {
	sizeWidth int
	buf       []byte
}

// NewBuilder 写入主头、HeaderLength 声明的填充（零字节）与私有头。
func NewBuilder(primary blobfmt.PrimaryHeader, private blobfmt.PrivateHeader, layout blobfmt.Layout) *Builder {
	b := &Builder{sizeWidth: layout.EntryHeaderSize() - blobfmt.EntryHashSize}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, primary.HeaderLength)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, primary.HeaderVersion)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, primary.VendorID)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, primary.DeviceID)
	b.buf = append(b.buf, primary.UUID[:]...)
	if pad := int(primary.HeaderLength) - blobfmt.PrimaryHeaderSize; pad > 0 {
		b.buf = append(b.buf, make([]byte, pad)...)
	}
	b.buf = append(b.buf, private.HashID[:]...)
	return b
}

// AddEntry 追加一个条目头与负载，dataSize 取 len(payload)。
func (b *Builder) AddEntry(hashID [blobfmt.EntryHashSize]byte, payload []byte) *Builder {
	return b.AddRawEntry(hashID, uint64(len(payload)), payload)
}

// AddRawEntry 允许声明与实际负载不一致的 dataSize，用于构造越界样例。
func (b *Builder) AddRawEntry(hashID [blobfmt.EntryHashSize]byte, dataSize uint64, payload []byte) *Builder {
	b.buf = append(b.buf, hashID[:]...)
	if b.sizeWidth == 8 {
		b.buf = binary.LittleEndian.AppendUint64(b.buf, dataSize)
	} else {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(dataSize))
	}
	b.buf = append(b.buf, payload...)
	return b
}

// Bytes 返回当前拼装结果的副本。
func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.buf...)
}
