package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"screencapture/internal/agent"
	"screencapture/internal/archive"
	"screencapture/internal/capture"
	"screencapture/internal/collector"
	"screencapture/internal/config"
	"screencapture/internal/encode"
	"screencapture/internal/logging"
	"screencapture/internal/query"
	"screencapture/internal/storage"
)

var (
	version = "0.1.0"
	cfgFile string
	outDir  string
)

var rootCmd = &cobra.Command{
	Use:           "screencapture",
	Short:         "Capture monitors and windows as JPEG artifacts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of monitors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := newService()
		if err != nil {
			return err
		}
		n, err := svc.CountSources()
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

var screenCmd = &cobra.Command{
	Use:   "screen <index>",
	Short: "Capture the first capturable monitor at or after index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		svc, _, err := newService()
		if err != nil {
			return err
		}
		art, ok, err := svc.CaptureByIndex(index)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no capturable monitor at or after index %d", index)
		}
		return writeArtifact(os.Stdout, outDir, art)
	},
}

var windowCmd = &cobra.Command{
	Use:   "window <id>",
	Short: "Capture the window with the given id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid window id %q", args[0])
		}
		svc, _, err := newService()
		if err != nil {
			return err
		}
		art, ok, err := svc.CaptureByID(uint32(id))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("window %d not found or not capturable", id)
		}
		return writeArtifact(os.Stdout, outDir, art)
	},
}

var activeWindowCmd = &cobra.Command{
	Use:   "active-window",
	Short: "Print the first capturable window (heuristic, not input focus)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := newService()
		if err != nil {
			return err
		}
		return printWindow(svc.FindActiveWindow())
	},
}

var focusedWindowCmd = &cobra.Command{
	Use:   "focused-window",
	Short: "Print the window holding input focus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := newService()
		if err != nil {
			return err
		}
		return printWindow(svc.FocusedWindow())
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Connect to a collector and serve capture queries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, env, err := newService()
		if err != nil {
			return err
		}
		defer env.log.Sync()
		a := agent.New(env.cfg.Agent, svc, env.log)
		env.log.Info("starting agent",
			zap.String("version", version),
			zap.String("server", env.cfg.Agent.ServerAddr),
			zap.String("device_id", a.DeviceID()),
			zap.Any("config", env.cfg.Masked()))
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Accept agents and expose the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		defer env.log.Sync()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		arch, err := archive.Open(env.cfg.Collector.SQLitePath)
		if err != nil {
			return err
		}
		defer arch.Close()
		store, err := storage.New(ctx, env.cfg.Storage)
		if err != nil {
			return err
		}
		env.log.Info("starting collector", zap.String("version", version), zap.Any("config", env.cfg.Masked()))
		return collector.New(env.cfg.Collector, arch, store, env.log).Run(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("screencapture v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches for screencapture.yaml)")
	for _, c := range []*cobra.Command{screenCmd, windowCmd} {
		c.Flags().StringVarP(&outDir, "output", "o", ".", "directory for the JPEG files")
	}
	rootCmd.AddCommand(countCmd, screenCmd, windowCmd, activeWindowCmd, focusedWindowCmd,
		agentCmd, collectorCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type env struct {
	cfg *config.Config
	log *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &env{cfg: cfg, log: log}, nil
}

// newService 按配置组装系统后端与编码管线
func newService() (*query.Service, *env, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, nil, err
	}
	pipeline := encode.NewPipeline(encode.Options{
		BaseQuality:      e.cfg.Encode.BaseQuality,
		ThumbnailDivisor: e.cfg.Encode.ThumbnailDivisor,
		Compressor:       encode.JpegliCompressor{Quality: e.cfg.Encode.Quality},
	})
	backend := capture.NewSystemBackend(e.cfg.Agent.Display)
	return query.NewService(backend, pipeline, e.log), e, nil
}
