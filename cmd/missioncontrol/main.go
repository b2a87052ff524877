package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	"github.com/trueagi-io/Vereya-sub001/internal/exit"
	"github.com/trueagi-io/Vereya-sub001/internal/influx"
	"github.com/trueagi-io/Vereya-sub001/internal/logging"
	"github.com/trueagi-io/Vereya-sub001/internal/missioncontrol"
	"github.com/trueagi-io/Vereya-sub001/internal/monitor"
	intOtel "github.com/trueagi-io/Vereya-sub001/internal/otel"
	"github.com/trueagi-io/Vereya-sub001/internal/storage"
	"github.com/trueagi-io/Vereya-sub001/internal/worker"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ProcessName string = "missioncontrol"
)

// file paths
var (
	// ConfigDir holds missioncontrol.cfg.json. Set by --config-dir.
	ConfigDir string

	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// zeroLogger feeds the dispatcher, database and influx managers
	zeroLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	graylogWriter io.WriteCloser

	SessionStartTime time.Time = time.Now()

	// Services
	storageBackend storage.Backend
	historyManager *worker.Manager
	influxManager  *influx.Manager
	monitorService *monitor.Service
	controller     *missioncontrol.Controller
	exitController *exit.Controller
)

func main() {
	if err := buildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}

// initLogging loads config and sets up slog, OTel and Graylog. Logging goes
// to stdout until the log file is open.
func initLogging() {
	var err error

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil, nil)
	Logger = SlogManager.Logger()

	if err = config.Load(ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", ConfigDir)
	}

	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.MkdirAll(logsDir, 0755)
	}

	LogFilePath = logging.LogFilePath(logsDir, ProcessName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var w io.Writer
		if LogFile != nil {
			w = LogFile
		}
		OTelProvider, err = intOtel.New(otelCfg, w)
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else if otelCfg.Endpoint != "" {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath)
		}
	}

	if viper.GetBool("graylog.enabled") {
		graylogWriter, err = logging.NewGraylogWriter(viper.GetString("graylog.address"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
			graylogWriter = nil
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	var gelf io.Writer
	if graylogWriter != nil {
		gelf = graylogWriter
	}
	var file io.Writer
	if LogFile != nil {
		file = LogFile
		zeroLogger = zerolog.New(LogFile).With().Timestamp().Str("process", ProcessName).Logger()
	} else {
		zeroLogger = zerolog.New(os.Stdout).With().Timestamp().Str("process", ProcessName).Logger()
	}
	zeroLogger = zeroLogger.Level(zerologLevel(viper.GetString("logLevel")))

	SlogManager.SetContextProvider(logContext)
	SlogManager.Setup(file, viper.GetString("logLevel"), otelLogProvider, gelf)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion, "build", BuildDate)
}

func zerologLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// initDiagnostics connects to InfluxDB when enabled. A nil manager means
// diagnostics are off.
func initDiagnostics(ctx context.Context) {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return
	}
	backupPath := filepath.Join(viper.GetString("logsDir"),
		fmt.Sprintf("%s_influx_%s.lp.gz", ProcessName, SessionStartTime.Format("20060102_150405")))

	m := influx.NewManager(zeroLogger, cfg, backupPath)
	if err := m.Connect(ctx); err != nil {
		Logger.Error("Failed to set up InfluxDB diagnostics", "error", err)
		return
	}
	influxManager = m
	Logger.Info("InfluxDB diagnostics enabled", "online", m.IsValid)
}

// shutdown runs once, from the exit controller.
func shutdown() {
	Logger.Info("Shutting down...")
	if controller != nil {
		controller.Stop()
	}
	if monitorService != nil {
		monitorService.Stop()
	}
	if historyManager != nil {
		historyManager.Stop()
	}
	if storageBackend != nil {
		dumpMemoryHistory()
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Error("Failed to shut down OTel", "error", err)
		}
	}
	if graylogWriter != nil {
		graylogWriter.Close()
	}
	Logger.Info("Shutdown complete")
	if LogFile != nil {
		LogFile.Close()
	}
}
