package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	"github.com/trueagi-io/Vereya-sub001/internal/events"
	"github.com/trueagi-io/Vereya-sub001/internal/exit"
	"github.com/trueagi-io/Vereya-sub001/internal/logging"
	"github.com/trueagi-io/Vereya-sub001/internal/missioncontrol"
	"github.com/trueagi-io/Vereya-sub001/internal/monitor"
)

// activeController backs the log context provider, which may run on any
// goroutine.
var activeController atomic.Pointer[missioncontrol.Controller]

func logContext() []slog.Attr {
	if c := activeController.Load(); c != nil {
		return c.LogContext()
	}
	return nil
}

func buildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           ProcessName,
		Short:         "Mission control client: answers agent commands and runs missions",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigDir, "config-dir", "c", ".", "directory containing "+config.ConfigFileName)

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildHistoryCommand())
	rootCmd.AddCommand(buildVersionCommand())
	return rootCmd
}

func buildRunCommand() *cobra.Command {
	var (
		tickRate int
		hc       hostConfig
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the client with a simulated host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(hc, tickRate)
		},
	}
	cmd.Flags().IntVar(&tickRate, "tick-rate", 20, "client ticks per second")
	cmd.Flags().IntVar(&hc.Width, "width", 320, "frame width in pixels")
	cmd.Flags().IntVar(&hc.Height, "height", 240, "frame height in pixels")
	cmd.Flags().DurationVar(&hc.WorldLoad, "world-load", 2*time.Second, "time a new world takes to load")
	cmd.Flags().DurationVar(&hc.MissionLength, "mission-length", 30*time.Second, "end every mission after this long (0 runs until exit)")
	cmd.Flags().StringVar(&hc.ServerAddress, "server-address", "127.0.0.1", "address handed out by FIND_SERVER")
	cmd.Flags().IntVar(&hc.ServerPort, "server-port", 25565, "port handed out by FIND_SERVER")
	return cmd
}

func buildHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the missions stored by the configured backend as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			return printHistory(cmd.OutOrStdout())
		},
	}
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (built %s)\n", ProcessName, CurrentVersion, BuildDate)
		},
	}
}

// runClient wires every service, serves until a signal or an accepted
// KILL, then shuts down within the configured grace period.
func runClient(hc hostConfig, tickRate int) error {
	initLogging()
	Logger.Info("Starting up...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initDiagnostics(ctx)
	if err := initStorage(); err != nil {
		shutdown()
		return fmt.Errorf("storage: %w", err)
	}

	clk := clock.New()
	bus := events.NewBus()
	exitController = exit.New(clk, config.GetExitGracePeriod(), func() {
		cancel()
		shutdown()
	}, nil)

	c, err := missioncontrol.New(missioncontrol.Dependencies{
		Host:           newSimHost(hc, clk, Logger),
		Bus:            bus,
		Clock:          clk,
		History:        historyManager,
		Logger:         Logger,
		DispatchLogger: logging.NewDispatcherLogger(zeroLogger.With().Str("component", "dispatcher").Logger()),
		OnKill:         exitController.Request,
	}, missioncontrol.Config{
		Version:   viper.GetString("version"),
		Commands:  config.GetCommandConfig(),
		Agent:     config.GetAgentConfig(),
		Telemetry: config.GetTelemetryConfig(),
		Timeouts:  config.GetTimeoutConfig(),
	})
	if err != nil {
		shutdown()
		return fmt.Errorf("mission control: %w", err)
	}
	controller = c
	activeController.Store(c)

	monitorDeps := monitor.Dependencies{
		Source:     c,
		History:    historyManager,
		Logger:     Logger,
		StatusPath: filepath.Join(viper.GetString("logsDir"), "status.json"),
	}
	if influxManager != nil {
		monitorDeps.Influx = influxManager
	}
	monitorService = monitor.NewService(monitorDeps)

	c.Start()
	monitorService.Start()

	portCtx, portCancel := context.WithTimeout(ctx, 10*time.Second)
	port, err := c.Port(portCtx)
	portCancel()
	if err != nil {
		Logger.Error("Command port never bound", "error", err)
		exitController.Request()
		<-exitController.Done()
		return err
	}
	Logger.Info("Mission control ready", "port", port, "version", viper.GetString("version"))

	go newTickDriver(bus, tickRate).Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		Logger.Info("Received signal", "signal", sig.String())
		exitController.Request()
	case <-exitController.Done():
	}
	<-exitController.Done()
	return nil
}
