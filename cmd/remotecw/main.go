package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/maximewewer/remotecw/internal/audio"
	"github.com/maximewewer/remotecw/internal/clockcheck"
	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/internal/keyer"
	"github.com/maximewewer/remotecw/internal/keyline"
	"github.com/maximewewer/remotecw/internal/server"
	"github.com/maximewewer/remotecw/internal/sidetone"
	"github.com/maximewewer/remotecw/internal/transport"
	"github.com/maximewewer/remotecw/pkg/logger"
	"github.com/maximewewer/remotecw/pkg/metrics"
	"github.com/spf13/pflag"
)

var (
	// Build information
	version = "dev"
	commit  = ""
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Path to configuration file (settings are saved back on exit)")
	showVersion := pflag.BoolP("version", "v", false, "Show version information")
	listDevices := pflag.BoolP("list-devices", "l", false, "List serial ports and audio outputs, then exit")
	dumpTone := pflag.StringP("dump-tone", "t", "", "Write the configured side-tone to a WAV file, then exit")
	pflag.Parse()

	if *showVersion {
		println("remotecw version", version)
		os.Exit(0)
	}

	// Load configuration (before logger is initialized)
	cfg, err := loadConfig(*configFile)
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	if *listDevices {
		if err := printDevices(os.Stdout); err != nil {
			os.Stderr.WriteString("Failed to list devices: " + err.Error() + "\n")
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *dumpTone != "" {
		if err := writeTone(*dumpTone, cfg.SideTone); err != nil {
			os.Stderr.WriteString("Failed to write tone: " + err.Error() + "\n")
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := logger.InitLogger(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		Component:  "remotecw",
		EnableFile: cfg.Logging.EnableFile,
	}); err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Startup(version, cfg)

	if err := run(cfg, *configFile); err != nil {
		logger.Fatal("main", "RemoteCW client failed", err)
	}

	logger.Shutdown("graceful")
}

// loadConfig loads configuration based on whether a config file is specified
func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		// Priority: Environment Variables > YAML File > Defaults
		return config.LoadFromYamlWithEnvOverrides(configFile)
	}
	return config.LoadFromEnvVarsOnly()
}

func run(cfg *config.Config, configFile string) error {
	registry := metrics.NewRegistryWithConfig(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	if err := registry.Register(); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	m := registry.GetMetrics()
	m.BuildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)

	opts, err := keyer.NewOptions(cfg)
	if err != nil {
		return err
	}

	events := server.NewBroadcaster()
	tone, closeTone := openSideTone(cfg.SideTone)
	defer closeTone()

	dialer := newDialer(cfg)
	session := keyer.NewSession(opts, keyer.Dependencies{
		Tone:        tone,
		Metrics:     m,
		Events:      events,
		Dial:        dialFunc(dialer),
		DialBreaker: breakerState(dialer),
		OpenKeyLine: keyLineFunc(cfg.Key),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- session.Run(ctx)
	}()

	var clock server.ClockStatus
	if cfg.Clock.NTPServer != "" {
		checker := clockcheck.New(cfg.Clock, m)
		go checker.Run(ctx)
		clock = checker
	}

	startSession(ctx, session, cfg, dialer.Address())

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv := server.New(cfg, registry.GetRegistry(), m, session, events, clock)
		go func() {
			serverErr <- srv.Start(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.SafeInfo("main", "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil {
			logger.Error("main", "Server error", err)
			runErr = err
		}
	case err := <-sessionErr:
		return err
	}

	// Settings are read back while the session still runs
	if configFile != "" {
		snapCtx, snapCancel := context.WithTimeout(context.Background(), 2*time.Second)
		snap, err := session.Snapshot(snapCtx)
		snapCancel()
		if err != nil {
			logger.Error("main", "Failed to read session settings", err)
		} else if err := saveSettings(configFile, cfg, snap); err != nil {
			logger.Error("main", "Failed to save settings", err)
		}
	}

	cancel()
	if err := <-sessionErr; err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// startSession connects and opens the key line when they are configured
func startSession(ctx context.Context, session *keyer.Session, cfg *config.Config, remote string) {
	if err := session.Connect(ctx); err != nil {
		logger.SafeWarn("main", "Initial connection failed", map[string]interface{}{
			"remote": remote,
			"error":  err.Error(),
		})
	}

	if cfg.Key.Device == "" {
		logger.Info("main", "No key line device configured")
		return
	}
	if err := session.OpenKeyLine(ctx); err != nil {
		logger.SafeWarn("main", "Failed to open key line", map[string]interface{}{
			"device": cfg.Key.Device,
			"error":  err.Error(),
		})
	}
}

func newDialer(cfg *config.Config) *transport.Dialer {
	if !cfg.Transport.CircuitBreaker.Enabled {
		return transport.NewDialer(cfg.Network, nil)
	}
	breaker := transport.BreakerConfigFrom(cfg.Transport.CircuitBreaker)
	return transport.NewDialer(cfg.Network, &breaker)
}

func dialFunc(d *transport.Dialer) keyer.DialFunc {
	return func(ctx context.Context) (keyer.Link, error) {
		conn, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func breakerState(d *transport.Dialer) keyer.BreakerStateFunc {
	return func() string {
		return d.State().String()
	}
}

func keyLineFunc(cfg config.KeyConfig) keyer.OpenKeyLineFunc {
	return func() (keyer.KeySource, error) {
		if cfg.Device == "" {
			return nil, errors.New("no key line device configured")
		}
		src, err := keyline.Open(cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// openSideTone starts audio output. Without a usable device the tone is
// discarded but its settings are still tracked and saved.
func openSideTone(cfg config.SideToneConfig) (keyer.ToneController, func()) {
	var out sidetone.Output = sidetone.Discard
	closeOut := func() {}

	player, err := audio.Open(cfg.Device, cfg.SampleRate)
	if err != nil {
		logger.SafeWarn("main", "Side-tone unavailable", map[string]interface{}{
			"device": cfg.Device,
			"error":  err.Error(),
		})
	} else {
		out = player
		closeOut = func() {
			if err := player.Close(); err != nil {
				logger.Errorf("main", err, "Failed to close audio output %q", cfg.Device)
			}
		}
	}

	ctrl, err := sidetone.NewController(out, toneConfig(cfg))
	if err != nil {
		logger.Error("main", "Failed to start side-tone", err)
		closeOut()
		return nil, func() {}
	}
	return ctrl, closeOut
}

func toneConfig(cfg config.SideToneConfig) sidetone.Config {
	return sidetone.Config{
		Enabled:       cfg.Enabled,
		Volume:        cfg.Volume,
		FrequencyHz:   cfg.Frequency,
		SampleRate:    cfg.SampleRate,
		BufferSeconds: cfg.BufferSeconds,
	}
}

// saveSettings persists the operator adjustable settings of snap into path
func saveSettings(path string, cfg *config.Config, snap keyer.Snapshot) error {
	updated := *cfg
	updated.Keying.PacketDelay = int(snap.PacketDelayMs)
	updated.SideTone.Enabled = snap.SideTone.Enabled
	updated.SideTone.Volume = snap.SideTone.Volume
	updated.SideTone.Frequency = snap.SideTone.FrequencyHz

	if err := config.SaveToYamlFile(path, &updated); err != nil {
		return err
	}

	logger.SafeInfo("main", "Settings saved", map[string]interface{}{
		"path":            path,
		"packet_delay_ms": snap.PacketDelayMs,
	})
	return nil
}

func printDevices(w io.Writer) error {
	ports, portsErr := keyline.Ports()
	fmt.Fprintln(w, "Serial ports:")
	for _, p := range ports {
		fmt.Fprintln(w, "  "+p)
	}

	outputs, audioErr := audio.OutputDevices()
	fmt.Fprintln(w, "Audio outputs:")
	for i, o := range outputs {
		fmt.Fprintf(w, "  %d: %s\n", i+1, o)
	}

	return errors.Join(portsErr, audioErr)
}

func writeTone(path string, cfg config.SideToneConfig) error {
	buf, err := sidetone.Generate(cfg.Frequency, cfg.SampleRate, cfg.BufferSeconds)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := sidetone.WriteWAV(f, buf); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
