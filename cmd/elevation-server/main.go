package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/twpayne/go-elevation-lookup"
)

const shutdownTimeout = 10 * time.Second

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"a":                 "addr",
	"p":                 "port",
	"u":                 "uri",
	"s":                 "srs",
	"max-open-files":    "max-open-files",
	"block-cache-size":  "block-cache-size",
	"max-request-bytes": "max-request-bytes",
	"bounds-densify":    "bounds-densify",
	"metrics-path":      "metrics-path",
	"log-format":        "log.format",
	"log-level":         "log.level",
}

// transformerFactory and rasterOpener are replaced by GDAL implementations
// when built with the gdal tag.
var transformerFactory elevation.TransformerFactory = elevation.ProjTransformerFactory{}

var rasterOpener = func(config *viper.Viper) (elevation.RasterOpener, error) {
	var fileCache *elevation.FileCache
	if maxOpenFiles := config.GetInt("max-open-files"); maxOpenFiles > 0 {
		var err error
		if fileCache, err = elevation.NewFileCache(maxOpenFiles); err != nil {
			return nil, err
		}
	}
	return elevation.NewRasterOpener(fileCache, config.GetInt("block-cache-size")), nil
}

func newConfig(flagSet *flag.FlagSet, args []string) (*viper.Viper, error) {
	config := viper.New()
	config.SetDefault("addr", "0.0.0.0")
	config.SetDefault("port", 80)
	config.SetDefault("uri", "/v1/elevations")
	config.SetDefault("srs", "WGS84")
	config.SetDefault("max-open-files", 0)
	config.SetDefault("block-cache-size", 16<<20)
	config.SetDefault("max-request-bytes", elevation.DefaultMaxRequestBytes)
	config.SetDefault("bounds-densify", 0)
	config.SetDefault("metrics-path", "/metrics")
	config.SetDefault("log.format", "console")
	config.SetDefault("log.level", "info")

	configFile := flagSet.String("c", "", "config `file`")
	flagSet.String("a", config.GetString("addr"), "bind `address`")
	flagSet.Int("p", config.GetInt("port"), "bind `port`")
	flagSet.String("u", config.GetString("uri"), "request `path`")
	flagSet.String("s", config.GetString("srs"), "query `SRS`")
	flagSet.Int("max-open-files", config.GetInt("max-open-files"), "maximum open raster files, 0 for unlimited")
	flagSet.Int("block-cache-size", config.GetInt("block-cache-size"), "decoded GeoTIFF block cache `bytes` per tile")
	flagSet.Int64("max-request-bytes", config.GetInt64("max-request-bytes"), "maximum request body `bytes`")
	flagSet.Int("bounds-densify", config.GetInt("bounds-densify"), "extra `points` per tile edge when computing bounds")
	flagSet.String("metrics-path", config.GetString("metrics-path"), "metrics `path`, empty to disable")
	flagSet.String("log-format", config.GetString("log.format"), "log `format` (console or json)")
	flagSet.String("log-level", config.GetString("log.level"), "log `level`")
	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Usage: %s [flags] path...\n", flagSet.Name())
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		config.SetConfigFile(*configFile)
		if err := config.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	config.SetEnvPrefix("elevation")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	config.AutomaticEnv()

	// Explicitly set flags take precedence over everything else.
	flagSet.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			config.Set(key, f.Value.String())
		}
	})
	return config, nil
}

func newLogger(config *viper.Viper) (*zap.Logger, error) {
	var zapConfig zap.Config
	switch format := config.GetString("log.format"); format {
	case "json":
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("%s: unknown log format", format)
	}
	zapConfig.DisableStacktrace = true
	if err := zapConfig.Level.UnmarshalText([]byte(config.GetString("log.level"))); err != nil {
		return nil, err
	}
	return zapConfig.Build()
}

func newRouter(config *viper.Viper, registry *elevation.Registry, logger *zap.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Handle(config.GetString("uri"), elevation.NewHTTPHandler(registry,
		elevation.WithHTTPLogger(logger),
		elevation.WithMaxRequestBytes(config.GetInt64("max-request-bytes")),
	))
	if metricsPath := config.GetString("metrics-path"); metricsPath != "" {
		router.Method(http.MethodGet, metricsPath, promhttp.Handler())
	}
	return router
}

func run() error {
	flagSet := flag.NewFlagSet("elevation-server", flag.ContinueOnError)
	config, err := newConfig(flagSet, os.Args[1:])
	if err != nil {
		return err
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return errors.New("no raster paths")
	}

	logger, err := newLogger(config)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	querySRS, err := elevation.SanitizeSRS(config.GetString("srs"))
	if err != nil {
		return err
	}
	if err := (elevation.ProjTransformerFactory{}).ValidateSRS(querySRS); err != nil {
		return err
	}

	opener, err := rasterOpener(config)
	if err != nil {
		return err
	}
	registry, err := elevation.NewRegistry(flagSet.Args(), querySRS,
		elevation.WithLogger(logger),
		elevation.WithTileOptions(
			elevation.WithRasterOpener(opener),
			elevation.WithTransformerFactory(transformerFactory),
			elevation.WithBoundsDensify(config.GetInt("bounds-densify")),
		),
	)
	if err != nil {
		return err
	}
	defer registry.Close()
	if registry.IsEmpty() {
		return errors.New("no tiles loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(config.GetString("addr"), strconv.Itoa(config.GetInt("port")))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           newRouter(config, registry, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("uri", config.GetString("uri")),
		zap.String("srs", querySRS),
		zap.Int("tiles", len(registry.Tiles())),
	)

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- server.Serve(listener)
	}()

	select {
	case err := <-serveErrCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serveErrCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
