package blobfmt

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"iter"
)

// Digest 是 128 位 MD5 内容摘要。
type Digest [md5.Size]byte

// SumDigest 计算 p 的 MD5。
func SumDigest(p []byte) Digest {
	return Digest(md5.Sum(p))
}

// String 返回小写十六进制形式。
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest 解析 32 位十六进制字符串。
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("blobfmt: parse digest: %w", err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("blobfmt: parse digest: want %d bytes, got %d", len(d), len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// Entry 是条目列表中的一条记录。Payload 与原始 blob 共享底层数组，只读。
type Entry struct {
	Index    int
	Offset   int
	HashID   [EntryHashSize]byte
	DataSize uint64
	Payload  []byte
	Digest   Digest
}

// Entries 从 start 开始遍历条目，直到恰好消费完 blob。
//
// 序列是惰性、只进的：遇到第一个结构错误时产出 (Entry{}, err) 并结束，
// 此前已产出的条目保持有效。
func Entries(blob []byte, start int, layout Layout) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		w := newWalker(blob, start, layout)
		for {
			entry, ok, err := w.next()
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Walk 收集全部条目；出错时返回出错前的条目与错误。
func Walk(blob []byte, start int, layout Layout) ([]Entry, error) {
	var entries []Entry
	for entry, err := range Entries(blob, start, layout) {
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type walker struct {
	blob   []byte
	layout Layout
	cursor int
	end    int
	index  int
	done   bool
}

func newWalker(blob []byte, start int, layout Layout) *walker {
	return &walker{blob: blob, layout: layout, cursor: start, end: len(blob)}
}

func (w *walker) next() (Entry, bool, error) {
	if w.done {
		return Entry{}, false, nil
	}
	if w.cursor < 0 || w.cursor > w.end {
		w.done = true
		return Entry{}, false, entryError(ErrTooSmall, w.index, w.cursor,
			fmt.Sprintf("entry list starts outside the %d B blob", w.end))
	}
	if w.cursor == w.end {
		w.done = true
		return Entry{}, false, nil
	}

	headerSize := w.layout.EntryHeaderSize()
	remaining := w.end - w.cursor
	if remaining < headerSize {
		w.done = true
		return Entry{}, false, entryError(ErrTruncatedEntryHeader, w.index, w.cursor,
			fmt.Sprintf("%d B remaining, entry header needs %d B", remaining, headerSize))
	}

	entry := Entry{Index: w.index, Offset: w.cursor}
	copy(entry.HashID[:], w.blob[w.cursor:w.cursor+EntryHashSize])
	entry.DataSize = w.readSize(w.blob[w.cursor+EntryHashSize : w.cursor+headerSize])

	available := uint64(remaining - headerSize)
	if entry.DataSize > available {
		w.done = true
		return Entry{}, false, entryError(ErrPayloadOverrunsBuffer, w.index, w.cursor,
			fmt.Sprintf("data size %d > %d B remaining", entry.DataSize, available))
	}

	payloadStart := w.cursor + headerSize
	payloadEnd := payloadStart + int(entry.DataSize)
	entry.Payload = w.blob[payloadStart:payloadEnd:payloadEnd]
	entry.Digest = SumDigest(entry.Payload)

	w.cursor = payloadEnd
	w.index++
	return entry, true, nil
}

func (w *walker) readSize(field []byte) uint64 {
	if len(field) == 8 {
		return binary.LittleEndian.Uint64(field)
	}
	return uint64(binary.LittleEndian.Uint32(field))
}
