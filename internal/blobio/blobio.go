// Package blobio loads cache blobs into memory. Cache dumps collected from
// devices are often shipped compressed, so zstd, gzip and lz4 frames are
// recognised by their magic bytes and expanded before parsing. The expanded
// size is bounded by Options.MaxSize.
package blobio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/any-hub/cache-info/internal/blobfmt"
)

var (
	// ErrUnreadable 表示输入无法读取。
	ErrUnreadable = errors.New("blobio: input unreadable")
	// ErrTooLarge 表示输入（解压后）超过 MaxSize。
	ErrTooLarge = errors.New("blobio: input exceeds size limit")
)

// DefaultMaxSize 是未配置时允许的最大输入体积。
const DefaultMaxSize int64 = 1 << 30

// Compression 标识输入的压缩格式。
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
	CompressionLZ4  Compression = "lz4"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Options 控制读取行为。
type Options struct {
	// Decompress 为 false 时按原样返回输入。
	Decompress bool
	// MaxSize 限制读入（及解压后）的字节数，<=0 时使用 DefaultMaxSize。
	MaxSize int64
}

func (o Options) maxSize() int64 {
	if o.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return o.MaxSize
}

// Input 是完整驻留内存的输入。
type Input struct {
	Path        string
	Data        []byte
	RawSize     int
	Compression Compression
}

// ReadFile 读取整个文件，必要时解压。
func ReadFile(path string, opts Options) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	raw, err := readLimited(f, opts.maxSize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	data, compression, err := Decode(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Input{
		Path:        path,
		Data:        data,
		RawSize:     len(raw),
		Compression: compression,
	}, nil
}

// Decode 识别并解压内存中的输入；未压缩或 Decompress 关闭时返回原切片。
// 魔数与 headerLength 字段共用开头字节：原样即可解出缓存头的输入不再解压，
// 解压失败时也按未压缩输入处理，只有超出体积上限才作为错误返回。
func Decode(raw []byte, opts Options) ([]byte, Compression, error) {
	compression := Detect(raw)
	if compression != CompressionNone && parsesAsHeader(raw) {
		compression = CompressionNone
	}
	if opts.Decompress && compression != CompressionNone {
		data, err := decompress(raw, compression, opts.maxSize())
		if err == nil {
			return data, compression, nil
		}
		if errors.Is(err, ErrTooLarge) {
			return nil, compression, err
		}
	}

	if int64(len(raw)) > opts.maxSize() {
		return nil, CompressionNone, fmt.Errorf("%w: %d B > %d B", ErrTooLarge, len(raw), opts.maxSize())
	}
	return raw, CompressionNone, nil
}

func parsesAsHeader(raw []byte) bool {
	_, err := blobfmt.DecodeHeader(raw)
	return err == nil
}

// Detect 依据魔数判断压缩格式，不检查其后的内容。
func Detect(raw []byte) Compression {
	switch {
	case bytes.HasPrefix(raw, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(raw, lz4Magic):
		return CompressionLZ4
	case bytes.HasPrefix(raw, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

func decompress(raw []byte, compression Compression, limit int64) ([]byte, error) {
	src := bytes.NewReader(raw)
	switch compression {
	case CompressionZstd:
		dec, err := zstd.NewReader(src, zstd.WithDecoderMaxMemory(uint64(limit)+1))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrUnreadable, err)
		}
		defer dec.Close()
		data, err := readDecompressed(dec, limit, compression)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
			return nil, fmt.Errorf("%w: zstd frame larger than %d B", ErrTooLarge, limit)
		}
		return data, err
	case CompressionGzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrUnreadable, err)
		}
		defer zr.Close()
		return readDecompressed(zr, limit, compression)
	case CompressionLZ4:
		return readDecompressed(lz4.NewReader(src), limit, compression)
	default:
		return raw, nil
	}
}

func readDecompressed(r io.Reader, limit int64, compression Compression) ([]byte, error) {
	data, err := readLimited(r, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", compression, err)
	}
	return data, nil
}

// readLimited 读取至多 limit 字节，多出一个字节即视为超限。
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d B", ErrTooLarge, limit)
	}
	return data, nil
}
