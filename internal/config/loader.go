package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/blobio"
)

// EnvPrefix 是覆盖配置项的环境变量前缀，例如 CACHE_INFO_LOGLEVEL。
const EnvPrefix = "CACHE_INFO"

// Load 读取 TOML 配置文件并注入默认值与校验逻辑。path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	hooks := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		byteSizeDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Scan.DigestCachePath != "" {
		abs, err := filepath.Abs(cfg.Scan.DigestCachePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析摘要缓存目录: %w", err)
		}
		cfg.Scan.DigestCachePath = abs
	}

	return &cfg, nil
}

// Default 返回不读取任何文件时的配置。
func Default() *Config {
	cfg := &Config{}
	cfg.Global = GlobalConfig{
		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSize:    100,
		LogMaxBackups: 10,
		LogCompress:   true,
	}
	cfg.Parse = ParseConfig{
		EntrySizeWidth: 4,
		MaxBlobSize:    ByteSize(blobio.DefaultMaxSize),
		Decompress:     true,
	}
	cfg.Scan = ScanConfig{
		SourceExtensions: []string{".elf"},
		ScanWorkers:      4,
	}
	cfg.Service = ServiceConfig{
		ListenPort:  5000,
		ReadTimeout: Duration(30 * time.Second),
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("LogLevel", d.Global.LogLevel)
	v.SetDefault("LogFormat", d.Global.LogFormat)
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", d.Global.LogMaxSize)
	v.SetDefault("LogMaxBackups", d.Global.LogMaxBackups)
	v.SetDefault("LogCompress", d.Global.LogCompress)
	v.SetDefault("EntrySizeWidth", d.Parse.EntrySizeWidth)
	v.SetDefault("MaxBlobSize", d.Parse.MaxBlobSize.Int64())
	v.SetDefault("Decompress", d.Parse.Decompress)
	v.SetDefault("ElfSourceDir", "")
	v.SetDefault("SourceExtensions", d.Scan.SourceExtensions)
	v.SetDefault("ScanWorkers", d.Scan.ScanWorkers)
	v.SetDefault("DigestCachePath", "")
	v.SetDefault("ListenPort", d.Service.ListenPort)
	v.SetDefault("RequestsPerSecond", 0)
	v.SetDefault("ReadTimeout", "30s")
}

func applyDefaults(cfg *Config) {
	if cfg.Global.LogFormat == "" {
		cfg.Global.LogFormat = "text"
	}
	if cfg.Parse.EntrySizeWidth == 0 {
		cfg.Parse.EntrySizeWidth = 4
	}
	if cfg.Parse.MaxBlobSize == 0 {
		cfg.Parse.MaxBlobSize = ByteSize(blobio.DefaultMaxSize)
	}
	if cfg.Scan.ScanWorkers == 0 {
		cfg.Scan.ScanWorkers = 4
	}
	if cfg.Service.ReadTimeout.DurationValue() == 0 {
		cfg.Service.ReadTimeout = Duration(30 * time.Second)
	}
}

// Layout 返回解析器使用的条目布局。
func (c *Config) Layout() blobfmt.Layout {
	return blobfmt.Layout{SizeFieldWidth: c.Parse.EntrySizeWidth}
}

// InputOptions 返回读取缓存文件时使用的选项。
func (c *Config) InputOptions() blobio.Options {
	return blobio.Options{Decompress: c.Parse.Decompress, MaxSize: c.Parse.MaxBlobSize.Int64()}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(ByteSize(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			var size ByteSize
			if err := size.UnmarshalText([]byte(v)); err != nil {
				return nil, fmt.Errorf("无法解析容量字段: %s", v)
			}
			return size, nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		case ByteSize:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的容量类型: %T", v)
		}
	}
}
