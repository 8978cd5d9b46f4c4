package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/blobio"
	"github.com/any-hub/cache-info/internal/cache"
	"github.com/any-hub/cache-info/internal/config"
	"github.com/any-hub/cache-info/internal/digestindex"
	"github.com/any-hub/cache-info/internal/inspect"
	"github.com/any-hub/cache-info/internal/logging"
	"github.com/any-hub/cache-info/internal/report"
	"github.com/any-hub/cache-info/internal/server"
	"github.com/any-hub/cache-info/internal/server/routes"
	"github.com/any-hub/cache-info/internal/vendors"
	"github.com/any-hub/cache-info/internal/version"
)

// 退出码：区分"输入不可读/过短"与"内容结构非法"，调用方据此决定是否换输入重试。
const (
	exitOK         = 0
	exitSetup      = 1
	exitUsage      = 2
	exitInput      = 3
	exitStructural = 4
)

const (
	configEnv         = "CACHE_INFO_CONFIG"
	defaultConfigPath = "cache-info.toml"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	inputPath   string
	sourceDir   string
	serve       bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		fmt.Fprintln(stdErr, "用法: cache-info [--config FILE] [--elf-source-dir DIR] <cache_file.bin>")
		os.Exit(exitUsage)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return exitOK
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return exitSetup
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return exitSetup
	}

	sourceDir := cfg.Scan.ElfSourceDir
	if opts.sourceDir != "" {
		sourceDir = opts.sourceDir
	}
	if sourceDir != "" {
		resolved, err := digestindex.ResolveDir(sourceDir)
		if err != nil {
			fmt.Fprintf(stdErr, "elf-source-dir %s 无效: %v\n", sourceDir, err)
			return exitUsage
		}
		sourceDir = resolved
	}

	if opts.serve {
		return serve(cfg, opts.configPath, sourceDir, logger)
	}
	return inspectFile(cfg, opts, sourceDir, logger)
}

func inspectFile(cfg *config.Config, opts cliOptions, sourceDir string, logger *logrus.Logger) int {
	input, err := blobio.ReadFile(opts.inputPath, cfg.InputOptions())
	if err != nil {
		fmt.Fprintf(stdErr, "无法读取缓存文件: %v\n", err)
		return exitInput
	}
	fmt.Fprintf(stdOut, "Read: %s, %d B\n", input.Path, len(input.Data))
	if input.Compression != blobio.CompressionNone {
		logger.WithFields(logrus.Fields{
			"action":      "decompress",
			"compression": input.Compression,
			"raw_size":    input.RawSize,
			"size":        len(input.Data),
		}).Debug("已解压输入")
	}

	idx, err := buildIndex(context.Background(), cfg, sourceDir, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "扫描 elf-source-dir 失败: %v\n", err)
		return exitUsage
	}

	inspectOpts := inspect.Options{Layout: cfg.Layout()}
	if idx != nil {
		inspectOpts.Resolver = idx
	}

	sink := report.NewText(stdOut)
	err = inspect.Inspect(input.Data, inspectOpts, sink)
	if werr := sink.Err(); werr != nil {
		logger.WithField("action", "report").Warnf("写出报告失败: %v", werr)
	}
	if err != nil {
		fmt.Fprintln(stdErr, describeFailure(err))
		return exitCodeFor(err)
	}
	return exitOK
}

func serve(cfg *config.Config, configPath, sourceDir string, logger *logrus.Logger) int {
	idx, err := buildIndex(context.Background(), cfg, sourceDir, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "扫描 elf-source-dir 失败: %v\n", err)
		return exitUsage
	}

	port := cfg.Service.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:            logger,
		Index:             idx,
		Layout:            cfg.Layout(),
		Input:             cfg.InputOptions(),
		RequestsPerSecond: cfg.Service.RequestsPerSecond,
		ReadTimeout:       cfg.Service.ReadTimeout.DurationValue(),
		ListenPort:        port,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建 HTTP 服务失败: %v\n", err)
		return exitSetup
	}
	routes.RegisterDiagnostics(app, idx)

	fields := logging.BaseFields("startup", configPath)
	fields["listen_port"] = port
	fields["max_blob_size"] = cfg.Parse.MaxBlobSize.String()
	fields["index_loaded"] = idx != nil
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("Fiber 服务启动")

	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return exitSetup
	}
	return exitOK
}

// buildIndex 在 dir 为空时返回 nil 索引；给出目录时即使没有匹配文件也返回空索引，
// 此时每个条目都会报告未找到源文件。
func buildIndex(ctx context.Context, cfg *config.Config, dir string, logger *logrus.Logger) (*digestindex.Index, error) {
	if dir == "" {
		return nil, nil
	}

	opts := digestindex.Options{
		Extensions: cfg.Scan.SourceExtensions,
		Workers:    cfg.Scan.ScanWorkers,
		Logger:     logger,
	}
	if cfg.Scan.DigestCachePath != "" {
		store, err := cache.NewStore(cfg.Scan.DigestCachePath)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"action": "digest_cache",
				"path":   cfg.Scan.DigestCachePath,
			}).Warnf("摘要缓存不可用，将完整扫描: %v", err)
		} else {
			opts.Cache = digestindex.NewDigestCache(store, logger)
		}
	}

	idx, err := digestindex.Build(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	stats := idx.Stats()
	logger.WithFields(logrus.Fields{
		"action":     "scan_source",
		"root":       stats.Root,
		"candidates": stats.Candidates,
		"indexed":    stats.Indexed,
		"skipped":    stats.Skipped,
		"collisions": stats.Collisions,
		"cache_hits": stats.CacheHits,
	}).Info("源文件索引完成")
	return idx, nil
}

// exitCodeFor 是解析结果到进程退出码的唯一映射点。
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, blobfmt.ErrTooSmall):
		return exitInput
	case blobfmt.IsStructural(err):
		return exitStructural
	default:
		return exitSetup
	}
}

func describeFailure(err error) string {
	var fe *blobfmt.FormatError
	if errors.As(err, &fe) && errors.Is(err, blobfmt.ErrUnsupportedVendor) {
		return fmt.Sprintf("%v；仅支持 %s", err, supportedVendors())
	}
	if errors.As(err, &fe) && fe.Entry != blobfmt.NoEntry {
		return fmt.Sprintf("读取条目 #%d 失败: %v", fe.Entry, err)
	}
	return fmt.Sprintf("解析失败: %v", err)
}

// supportedVendors 列出注册表中标记为可解析的厂商。
func supportedVendors() string {
	parsable := vendors.Parsable()
	if len(parsable) == 0 {
		return fmt.Sprintf("0x%x", blobfmt.AMDVendorID)
	}
	names := make([]string, 0, len(parsable))
	for _, v := range parsable {
		names = append(names, fmt.Sprintf("%s (0x%x)", v.Name, v.ID))
	}
	return strings.Join(names, ", ")
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
// 标志与位置参数可以交错出现。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("cache-info", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		sourceDir  string
		serveMode  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./cache-info.toml，可被 CACHE_INFO_CONFIG 覆盖）")
	fs.StringVar(&sourceDir, "elf-source-dir", "", "源 ELF 文件目录")
	fs.BoolVar(&serveMode, "serve", false, "以 HTTP 服务方式运行")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}

	opts := cliOptions{
		configPath:  resolveConfigPath(configFlag),
		sourceDir:   strings.TrimSpace(sourceDir),
		serve:       serveMode,
		showVersion: showVer,
	}
	if opts.showVersion {
		return opts, nil
	}

	switch {
	case opts.serve && len(positional) > 0:
		return cliOptions{}, errors.New("--serve 模式不接受缓存文件参数")
	case opts.serve:
	case len(positional) == 0:
		return cliOptions{}, errors.New("缺少缓存文件参数")
	case len(positional) > 1:
		return cliOptions{}, fmt.Errorf("只能指定一个缓存文件，收到 %d 个", len(positional))
	default:
		opts.inputPath = positional[0]
	}
	return opts, nil
}

// resolveConfigPath 依次使用 --config、CACHE_INFO_CONFIG 与当前目录下的默认文件；
// 都不存在时返回空串，仅使用内置默认值。
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	if info, err := os.Stat(defaultConfigPath); err == nil && !info.IsDir() {
		return defaultConfigPath
	}
	return ""
}
