package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/any-hub/asset-hub/internal/archive"
	"github.com/any-hub/asset-hub/internal/config"
	"github.com/any-hub/asset-hub/internal/logging"
	"github.com/any-hub/asset-hub/internal/proxy"
	"github.com/any-hub/asset-hub/internal/server"
	"github.com/any-hub/asset-hub/internal/server/routes"
	"github.com/any-hub/asset-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	command     string
	configPath  string
	checkOnly   bool
	showVersion bool

	folder    string
	blob      string
	manifest  string
	outDir    string
	area      string
	listPath  string
	reference string
	target    string
	lowercase bool
}

const (
	cmdServe    = "serve"
	cmdPack     = "pack"
	cmdAdd      = "add"
	cmdExtract  = "extract"
	cmdPrefetch = "prefetch"
	cmdMissing  = "missing"
	cmdVersion  = "version"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行对应子命令，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion || opts.command == cmdVersion {
		printVersion()
		return 0
	}

	switch opts.command {
	case cmdPack, cmdAdd:
		return runPack(opts)
	case cmdExtract:
		return runExtract(opts)
	case cmdPrefetch:
		return runPrefetch(opts)
	case cmdMissing:
		return runMissing(opts)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["areas"] = len(cfg.Areas)
		fields["modes"] = config.AreaModes(cfg.Areas)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 回源 client → AreaRegistry（含每个 area 的缓存目录与 Resolver）
	// → 后台加载归档 → Fiber server。
	httpClient := server.NewUpstreamClient(cfg)
	registry, err := server.NewAreaRegistry(cfg, httpClient)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Area 注册表失败: %v\n", err)
		return 1
	}

	fetcher := archive.NewFetcher(server.NewArchiveClient(cfg), logger)
	loader := server.NewArchiveLoader(fetcher, logger)
	go func() {
		if err := loader.LoadAll(context.Background(), registry); err != nil {
			logger.WithFields(logging.BaseFields("archive_preload", opts.configPath)).
				WithError(err).Warn("archive_preload_incomplete")
		}
	}()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["areas"] = len(cfg.Areas)
	fields["modes"] = config.AreaModes(cfg.Areas)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, loader, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析子命令与参数，并结合环境变量计算最终的配置路径。
// 第一个非 - 开头的参数视为子命令，缺省为 serve。
func parseCLIFlags(args []string) (cliOptions, error) {
	opts := cliOptions{command: cmdServe}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.command = args[0]
		args = args[1:]
	}

	fs := pflag.NewFlagSet("asset-hub "+opts.command, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configFlag string
	switch opts.command {
	case cmdServe:
		fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ASSET_HUB_CONFIG 覆盖）")
		fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
		fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	case cmdPack, cmdAdd:
		fs.StringVar(&opts.folder, "folder", "", "要打包的目录")
		fs.StringVar(&opts.blob, "blob", "", "blob 输出路径，后缀决定压缩格式（.xz/.zst/.lz4）")
		fs.StringVar(&opts.manifest, "manifest", "", "manifest 输出路径（.js 为 DATA_PACKAGE 格式，否则 JSON）")
	case cmdExtract:
		fs.StringVar(&opts.manifest, "manifest", "", "manifest 路径或 URL")
		fs.StringVar(&opts.blob, "blob", "", "blob 路径或 URL")
		fs.StringVarP(&opts.outDir, "out", "o", "", "解包输出目录")
	case cmdPrefetch:
		fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ASSET_HUB_CONFIG 覆盖）")
		fs.StringVar(&opts.area, "area", "", "要预取的 area 名称")
		fs.StringVar(&opts.listPath, "list", "", "每行一个相对路径的文件列表")
		fs.StringVar(&opts.manifest, "manifest", "", "以归档 manifest 的条目作为预取列表")
		fs.BoolVar(&opts.lowercase, "lowercase", false, "先请求小写 URL，404 时按原始大小写重试")
	case cmdMissing:
		fs.StringVar(&opts.reference, "reference", "", "参照目录")
		fs.StringVar(&opts.target, "target", "", "待检查目录")
	case cmdVersion:
	default:
		return cliOptions{}, fmt.Errorf("未知子命令: %s", opts.command)
	}

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("多余的参数: %s", strings.Join(fs.Args(), " "))
	}

	path := os.Getenv("ASSET_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}
	opts.configPath = path

	return opts, validateCommandFlags(opts)
}

// validateCommandFlags 检查子命令的必填参数。
func validateCommandFlags(opts cliOptions) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, "--"+name)
		}
	}
	switch opts.command {
	case cmdPack, cmdAdd:
		require("folder", opts.folder)
		require("blob", opts.blob)
		require("manifest", opts.manifest)
	case cmdExtract:
		require("manifest", opts.manifest)
		require("blob", opts.blob)
		require("out", opts.outDir)
	case cmdPrefetch:
		require("area", opts.area)
		if opts.listPath == "" && opts.manifest == "" {
			missing = append(missing, "--list|--manifest")
		}
	case cmdMissing:
		require("reference", opts.reference)
		require("target", opts.target)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s 缺少参数: %s", opts.command, strings.Join(missing, ", "))
	}
	return nil
}

func startHTTPServer(cfg *config.Config, registry *server.AreaRegistry, loader *server.ArchiveLoader, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      proxy.NewHandler(logger),
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterAreaRoutes(app, registry, loader)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
