package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-image/internal/cache"
	"github.com/any-hub/any-image/internal/config"
	"github.com/any-hub/any-image/internal/imaging"
	"github.com/any-hub/any-image/internal/imgsrv"
	"github.com/any-hub/any-image/internal/logging"
	"github.com/any-hub/any-image/internal/metrics"
	"github.com/any-hub/any-image/internal/pipeline"
	"github.com/any-hub/any-image/internal/server"
	"github.com/any-hub/any-image/internal/server/routes"
	"github.com/any-hub/any-image/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
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
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
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
		for key, value := range cfg.Summary() {
			fields[key] = value
		}
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	for key, value := range cfg.Summary() {
		fields[key] = value
	}
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("any-image", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ANY_IMAGE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ANY_IMAGE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// buildApp 按“图片目录 → 图片引擎 → pipeline → handler → Fiber”顺序组装服务，
// 所有请求共享同一份存储、in-flight 表与指标。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, error) {
	store, err := cache.NewStore(cfg.Image.ImgRoot)
	if err != nil {
		return nil, fmt.Errorf("初始化图片目录失败: %w", err)
	}

	engine := imaging.New(imaging.Config{
		Interpolation: cfg.Image.Interpolation,
		JPEGQuality:   cfg.Image.JPEGQuality,
	})

	flights := cache.NewFlights()
	stats := metrics.New(flights.Len)

	pipe := pipeline.New(store, engine, pipeline.Options{
		QueueDepth:   cfg.Image.QueueDepth,
		StallTimeout: cfg.Image.StallTimeout.DurationValue(),
		Logger:       logger,
		Recorder:     stats,
	})

	handler, err := imgsrv.NewHandler(imgsrv.Options{
		Config:   cfg.Image,
		Store:    store,
		Pipeline: pipe,
		Flights:  flights,
		Logger:   logger,
		Recorder: stats,
	})
	if err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Images:     handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnostics(app, cfg, handler, stats.Handler())
	return app, nil
}

func startHTTPServer(app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
