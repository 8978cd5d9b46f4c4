package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// ByteSize 接受纯字节数或 "64MiB"、"1GB" 这类可读写法。
type ByteSize int64

// UnmarshalText 解析可读的容量字符串。
func (b *ByteSize) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*b = 0
		return nil
	}
	if intVal, err := parseInt(raw); err == nil {
		*b = ByteSize(intVal)
		return nil
	}
	parsed, err := humanize.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid byte size value: %s", raw)
	}
	*b = ByteSize(parsed)
	return nil
}

// Int64 返回字节数。
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// String 以 IEC 单位输出，用于日志。
func (b ByteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.IBytes(uint64(b))
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述日志相关的全局行为。
type GlobalConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFormat     string `mapstructure:"LogFormat"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// ParseConfig 控制缓存文件的读取与解码。
type ParseConfig struct {
	// EntrySizeWidth 为条目头中 dataSize 字段的字节数（4 或 8）。
	EntrySizeWidth int      `mapstructure:"EntrySizeWidth"`
	MaxBlobSize    ByteSize `mapstructure:"MaxBlobSize"`
	Decompress     bool     `mapstructure:"Decompress"`
}

// ScanConfig 控制源 ELF 目录的扫描。
type ScanConfig struct {
	ElfSourceDir     string   `mapstructure:"ElfSourceDir"`
	SourceExtensions []string `mapstructure:"SourceExtensions"`
	ScanWorkers      int      `mapstructure:"ScanWorkers"`
	DigestCachePath  string   `mapstructure:"DigestCachePath"`
}

// ServiceConfig 仅在 --serve 模式下生效。
type ServiceConfig struct {
	ListenPort        int      `mapstructure:"ListenPort"`
	RequestsPerSecond float64  `mapstructure:"RequestsPerSecond"`
	ReadTimeout       Duration `mapstructure:"ReadTimeout"`
}

// Config 是 TOML 文件映射的整体结构，所有键位于顶层。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Parse   ParseConfig   `mapstructure:",squash"`
	Scan    ScanConfig    `mapstructure:",squash"`
	Service ServiceConfig `mapstructure:",squash"`
}
