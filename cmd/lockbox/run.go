package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/sweeney/lockbox/internal/config"
	"github.com/sweeney/lockbox/internal/gpio"
	"github.com/sweeney/lockbox/internal/hal"
	"github.com/sweeney/lockbox/internal/input"
	"github.com/sweeney/lockbox/internal/mqtt"
	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/status"
	"github.com/sweeney/lockbox/internal/store"
	"github.com/sweeney/lockbox/internal/web"
)

const (
	dbFile   = "lockbox.db"
	lockFile = "lockbox.lock"

	connectTimeout = 5 * time.Second
	bootTimeout    = 10 * time.Second

	// Front panel timings not exposed as settings.
	buttonDebounce     = 50 * time.Millisecond
	doubleClickWindow  = 400 * time.Millisecond
	interlockGraceTail = 500 * time.Millisecond
)

type runOptions struct {
	tick      time.Duration
	heartbeat time.Duration
	broker    string
	httpAddr  string
	dataDir   string
}

func newRunCmd(configPath *string) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, fp, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("broker") {
				settings.Device.Broker = opts.broker
			}
			if flags.Changed("http") {
				settings.Device.HTTPAddr = opts.httpAddr
			}
			if flags.Changed("data-dir") {
				settings.Device.DataDir = opts.dataDir
			}
			return run(*configPath, settings, fp, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.tick, "tick", 100*time.Millisecond, "engine tick interval")
	cmd.Flags().DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	cmd.Flags().StringVar(&opts.broker, "broker", "", "MQTT broker address (overrides settings)")
	cmd.Flags().StringVar(&opts.httpAddr, "http", "", `HTTP address (overrides settings, "" disables)`)
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "data directory (overrides settings)")
	return cmd
}

// channelPins maps the configured pins onto the driver's fixed channel
// array. Missing channels are marked not installed.
func channelPins(pins []int) [gpio.Channels]int {
	var out [gpio.Channels]int
	for i := range out {
		out[i] = -1
		if i < len(pins) {
			out[i] = pins[i]
		}
	}
	return out
}

// panelConfig derives the front panel timings from the system settings.
func panelConfig(sys config.System) input.PanelConfig {
	longPress := time.Duration(sys.LongPressMs) * time.Millisecond
	return input.PanelConfig{
		Debounce:         buttonDebounce,
		LongPress:        longPress,
		DoubleClick:      doubleClickWindow,
		InterlockOnDelay: time.Duration(sys.InterlockOnDelay) * time.Second,
		InterlockGrace:   longPress + interlockGraceTail,
	}
}

func run(configPath string, settings config.Settings, fingerprint string, opts runOptions) error {
	dev := settings.Device
	if err := os.MkdirAll(dev.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// One controller owns the hardware.
	fl := flock.New(filepath.Join(dev.DataDir, lockFile))
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("another controller is running (%s is locked)", fl.Path())
	}
	defer fl.Unlock()

	st, err := store.Open(filepath.Join(dev.DataDir, dbFile))
	if err != nil {
		return err
	}
	defer st.Close()

	bootCtx, cancel := context.WithTimeout(context.Background(), bootTimeout)
	defer cancel()
	if n, err := st.CloseOpenSessions(bootCtx, session.OutcomeAborted, time.Now()); err != nil {
		log.Printf("store: failed to close open sessions: %v", err)
	} else if n > 0 {
		log.Printf("store: closed %d session(s) interrupted by a restart", n)
	}
	snap, found, err := st.LoadSnapshot(bootCtx)
	if err != nil {
		log.Printf("store: failed to load state, starting fresh: %v", err)
		found = false
	}

	reader, err := gpio.NewRealReader(dev.ButtonPin, dev.InterlockPin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()
	driver, err := gpio.NewRealDriver(channelPins(dev.ChannelPins))
	if err != nil {
		return fmt.Errorf("init outputs: %w", err)
	}

	hostname, _ := os.Hostname()
	publisher, err := mqtt.NewRealPublisher(dev.Broker, "lockbox-"+hostname, connectTimeout)
	if err != nil {
		driver.Close()
		return err
	}
	defer publisher.Close()

	device := hal.New(hal.Deps{
		Reader:    reader,
		Driver:    driver,
		Store:     st,
		Publisher: publisher,
		Conn:      publisher,
	}, hal.Config{
		Panel:            panelConfig(settings.System),
		BrokerMaxRetries: int(settings.System.BrokerMaxRetries),
	})
	defer device.Close()

	engine := session.NewEngine(device, session.StandardRules{},
		settings.SystemDefaults(), settings.SessionPresets(), settings.DeterrentConfig())
	if found {
		engine.Load(snap)
		device.Resume(snap.State)
	}
	engine.Recover()
	engine.Diagnostics()

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      opts.tick.Milliseconds(),
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      dev.Broker,
		HTTPAddr:    dev.HTTPAddr,
		Fingerprint: fingerprint,
	})
	c := &controller{
		engine:    engine,
		device:    device,
		publisher: publisher,
		conn:      publisher,
		tracker:   tracker,
		heartbeat: opts.heartbeat,
		now:       time.Now,
	}
	c.refresh()

	startup := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  startup.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(startup, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if dev.HTTPAddr != "" {
		srv := web.New(web.Options{
			Addr:       dev.HTTPAddr,
			Tracker:    tracker,
			Controller: engine,
			Logs:       device,
			History:    st,
			Settings:   config.NewFile(configPath, settings),
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", dev.HTTPAddr)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go device.Run(ctx)

	log.Printf("started: tick=%v broker=%s heartbeat=%v settings=%.12s", opts.tick, dev.Broker, opts.heartbeat, fingerprint)

	ticker := time.NewTicker(opts.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(c, ticker.C, sigCh)
}
