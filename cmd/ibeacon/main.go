package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/richardtguy/ibeacon-scan-hci/internal/app"
	"github.com/richardtguy/ibeacon-scan-hci/internal/cliconfig"
	"github.com/richardtguy/ibeacon-scan-hci/internal/domain"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/log"
	"github.com/richardtguy/ibeacon-scan-hci/pkg/scanner"
)

const longHelp = `Decode iBeacon advertisements from hcidump and share them over TCP.

serve reads "hcidump --raw" output (stdin, a file, a serial HCI dongle or
an hcidump child process), decodes iBeacon advertising reports and sends
each one to every connected subscriber as a length-prefixed JSON frame.

listen connects to a server and prints one line per beacon.`

var exampleUsage = strings.TrimSpace(`
  hcidump --raw | ibeacon serve 0.0.0.0
  ibeacon serve --source hcidump --lescan --hci hci0
  ibeacon serve --source serial --source-path /dev/ttyUSB0 --serial-baud 115200
  ibeacon listen raspberrypi.local --reconnect
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "ibeacon",
		Short:         "Broadcast decoded iBeacon advertisements to TCP subscribers",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.ibeacon/config.toml)")
	root.PersistentFlags().StringVar(&cfg.Host, "host", cfg.Host, "server host (also accepted as the first argument)")
	root.PersistentFlags().IntVar(&cfg.Port, "port", cfg.Port, "server TCP port")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append JSON logs to this file instead of stderr")

	serve := &cobra.Command{
		Use:   "serve [host]",
		Short: "Decode a capture stream and serve beacons to subscribers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, args, cfgPath, &cfg); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	serve.Flags().StringVar(&cfg.Source, "source", cfg.Source, "capture source: stdin, file, serial or hcidump")
	serve.Flags().StringVar(&cfg.SourcePath, "source-path", cfg.SourcePath, "capture file or serial device path")
	serve.Flags().BoolVar(&cfg.Follow, "follow", cfg.Follow, "keep reading a capture file as it grows")
	serve.Flags().StringVar(&cfg.HCI, "hci", cfg.HCI, "HCI device for the hcidump source")
	serve.Flags().BoolVar(&cfg.Lescan, "lescan", cfg.Lescan, "run hcitool lescan alongside hcidump")
	serve.Flags().IntVar(&cfg.SerialBaud, "serial-baud", cfg.SerialBaud, "serial baud rate")
	serve.Flags().IntVar(&cfg.SerialDataBits, "serial-data-bits", cfg.SerialDataBits, "serial data bits (5-8)")
	serve.Flags().IntVar(&cfg.SerialStopBits, "serial-stop-bits", cfg.SerialStopBits, "serial stop bits (1 or 2)")
	serve.Flags().StringVar(&cfg.SerialParity, "serial-parity", cfg.SerialParity, "serial parity (N, E or O)")
	serve.Flags().DurationVar(&cfg.AcceptTimeout, "accept-timeout", cfg.AcceptTimeout, "upper bound on each accept wait")
	serve.Flags().DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per-frame subscriber write deadline (0 disables)")
	serve.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "how long to wait for the capture pipeline on shutdown")
	serve.Flags().StringVar(&cfg.QueueOrder, "queue-order", cfg.QueueOrder, "subscriber queue order: lifo or fifo")

	listen := &cobra.Command{
		Use:   "listen [host]",
		Short: "Subscribe to a server and print beacons",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, args, cfgPath, &cfg); err != nil {
				return err
			}
			return runListen(cmd.OutOrStdout(), cfg)
		},
	}
	listen.Flags().StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "server host:port (overrides host and port)")
	listen.Flags().BoolVar(&cfg.Reconnect, "reconnect", cfg.Reconnect, "reconnect with backoff when the connection ends")
	listen.Flags().DurationVar(&cfg.ReconnectMax, "reconnect-max", cfg.ReconnectMax, "maximum delay between reconnect attempts")

	root.AddCommand(serve, listen)

	if err := root.Execute(); err != nil {
		fallback, _, _ := cliconfig.Logger("info", "")
		fallback.Error().Err(err).Msg("ibeacon")
		os.Exit(1)
	}
}

// loadConfig layers the config file, then IBEACON_* environment, under
// the explicitly set flags, and validates the result.
func loadConfig(cmd *cobra.Command, args []string, cfgPath string, cfg *cliconfig.Config) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if len(args) == 1 {
		cfg.Host = args[0]
		changed["host"] = true
	}

	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	} else if cfgPath != "" {
		return fmt.Errorf("config file %s not found", cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}

	return cfg.Validate()
}

func runServe(cfg cliconfig.Config) error {
	zl, closer, err := cliconfig.Logger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	zl.Info().Interface("config", cfg).Msg("configuration")
	logger := log.NewZerologAdapterWithLogger(zl)

	s, err := scanner.New(cfg.ScannerConfig(),
		scanner.WithLogger(logger),
		scanner.WithLineSource(cfg.LineSource(logger)),
	)
	if err != nil {
		return fmt.Errorf("create scanner: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := s.Start(context.Background()); err != nil {
		return fmt.Errorf("start scanner: %w", err)
	}

	select {
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("received signal, stopping...")
	case <-s.Done():
		if s.Status() == scanner.StateCrashed {
			return fmt.Errorf("scanner crashed: %w", s.Err())
		}
	}

	if err := s.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		return fmt.Errorf("stop scanner: %w", err)
	}
	return nil
}

func runListen(out io.Writer, cfg cliconfig.Config) error {
	zl, closer, err := cliconfig.Logger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub := app.NewSubscriber(app.SubscriberConfig{
		Addr:       cfg.DialAddr(),
		Reconnect:  cfg.Reconnect,
		BackoffMax: cfg.ReconnectMax,
	}, log.NewZerologAdapterWithLogger(zl))

	err = sub.Run(ctx, func(ev domain.BeaconEvent) {
		fmt.Fprintln(out, ev.String())
	})
	if errors.Is(err, io.EOF) {
		zl.Info().Str("server", cfg.DialAddr()).Msg("server closed the connection")
		return nil
	}
	return err
}
