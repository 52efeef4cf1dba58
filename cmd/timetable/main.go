package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/username/timetable/internal/calendar"
	"github.com/username/timetable/internal/config"
	"github.com/username/timetable/internal/daemon"
	"github.com/username/timetable/internal/server"
	"github.com/username/timetable/internal/store/sqlite"
)

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "timetable",
		Short:         "Calendar timetable generator",
		Long:          "Generate monthly and daily calendar dimension rows as files, an HTTP feed or an SQLite table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				initLogger()
				return err
			}
			if cfg.Daemon.LogFile != "" {
				logger, err = initFileLogger(cfg.Daemon.LogFile, cfg.Daemon.LogLevel)
				if err != nil {
					initLogger() // Fallback to console
				}
			} else {
				initLogger() // Default console logger
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: ./timetable.yaml)")

	rootCmd.AddCommand(monthlyCmd())
	rootCmd.AddCommand(dailyCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(daemonCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve timetable feeds over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}

			store, err := sqlite.Open(cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg, calendar.SystemClock{}, store, logger)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func daemonCmd() *cobra.Command {
	var refreshOnly bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Refresh the stored daily window every day",
		Long:  "Run in the foreground and reload the daily window around today into the SQLite store at daemon.daily_time",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			hour, minute := cfg.Daemon.GetDailyTime()
			d := daemon.New(store, daemon.Options{
				DailyHour:   hour,
				DailyMinute: minute,
				WindowDays:  cfg.Daily.WindowDays,
				BatchSize:   cfg.Export.BatchSize,
			}, logger)

			if refreshOnly {
				summary, err := d.RefreshNow()
				if err != nil {
					return err
				}
				printSummary(summary)
				return nil
			}
			return d.Start()
		},
	}

	cmd.Flags().BoolVar(&refreshOnly, "once", false, "Refresh once and exit")

	return cmd
}

func initLogger() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
}

func initFileLogger(logFile string, level string) (*zap.Logger, error) {
	// Setup lumberjack for log rotation
	logWriter := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,  // MB
		MaxBackups: 3,    // Keep max 3 old log files
		MaxAge:     28,   // days
		Compress:   true, // Compress old logs with gzip
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(logWriter),
		zapLevel,
	)

	return zap.New(core), nil
}
