package config

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入解析流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别: "+g.LogLevel)
	}
	switch strings.ToLower(g.LogFormat) {
	case "text", "json":
	default:
		return newFieldError("Global.LogFormat", "仅支持 text/json")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxSize/LogMaxBackups", "不能为负数")
	}

	p := c.Parse
	if p.EntrySizeWidth != 4 && p.EntrySizeWidth != 8 {
		return newFieldError("Parse.EntrySizeWidth", "仅支持 4 或 8")
	}
	if p.MaxBlobSize <= 0 {
		return newFieldError("Parse.MaxBlobSize", "必须大于 0")
	}

	s := c.Scan
	if s.ScanWorkers <= 0 {
		return newFieldError("Scan.ScanWorkers", "必须大于 0")
	}
	if len(s.SourceExtensions) == 0 {
		return newFieldError("Scan.SourceExtensions", "至少需要一个后缀")
	}
	for _, ext := range s.SourceExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return newFieldError("Scan.SourceExtensions", "后缀必须以 . 开头: "+ext)
		}
	}

	srv := c.Service
	if srv.ListenPort <= 0 || srv.ListenPort > 65535 {
		return newFieldError("Service.ListenPort", "必须在 1-65535")
	}
	if srv.RequestsPerSecond < 0 {
		return newFieldError("Service.RequestsPerSecond", "不能为负数")
	}
	if srv.ReadTimeout.DurationValue() <= 0 {
		return newFieldError("Service.ReadTimeout", "必须大于 0")
	}

	return nil
}
