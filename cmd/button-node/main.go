// Command button-node runs the wake/sense/transmit/sleep cycle of a battery
// powered button node on a Linux host, with MQTT standing in for the radio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/button-node/internal/broker"
	"github.com/sweeney/button-node/internal/gpio"
	"github.com/sweeney/button-node/internal/logic"
	"github.com/sweeney/button-node/internal/mqtt"
	"github.com/sweeney/button-node/internal/power"
	"github.com/sweeney/button-node/internal/status"
	"github.com/sweeney/button-node/internal/web"
)

// errReset ends a node run after the controller asked for a system reset.
var errReset = errors.New("system reset")

type options struct {
	cfg            logic.Config
	tick           time.Duration
	debounce       time.Duration
	chip           string
	fakeButton     bool
	broker         string
	embeddedBroker string
	httpAddr       string
	seed           int64
	printState     bool
}

func main() {
	def := logic.DefaultConfig()

	tick := flag.Duration("tick", time.Millisecond, "Scheduler tick period")
	debounce := flag.Duration("debounce", gpio.DefaultDebounce, "Button debounce duration")
	chip := flag.String("chip", "gpiochip0", "GPIO chip holding the button line")
	pin := flag.Int("pin", gpio.DefaultPinButton, "GPIO line offset of the button")
	fakeButton := flag.Bool("fake-button", false, "Use an always-released fake button instead of GPIO")
	appID := flag.Uint("app-id", uint(def.AppID), "Application id (network group)")
	channel := flag.Uint("channel", uint(def.Channel), "Radio channel (11..26)")
	lid := flag.Uint("lid", uint(def.LogicalID), "Logical device id (0xFE anonymous child, 1..0xEF child)")
	dest := flag.Uint("dest", uint(def.Dest), "Destination id (0x00 parent, 0xFF broadcast, 1..0xEF child)")
	sleep := flag.Duration("sleep", time.Duration(def.SleepMs)*time.Millisecond, "Sleep between cycles")
	tolerance := flag.Duration("sleep-tolerance", time.Duration(def.SleepToleranceMs)*time.Millisecond, "Random sleep variation (±)")
	txTimeout := flag.Duration("tx-timeout", time.Duration(def.TxTimeoutMs)*time.Millisecond, "Transmit completion timeout")
	brokerAddr := flag.String("broker", "tcp://127.0.0.1:1883", "MQTT broker address")
	embedded := flag.String("embedded-broker", "", `Run an embedded gateway broker on this address (e.g. ":1883", empty to disable)`)
	httpAddr := flag.String("http", ":8080", "HTTP status address (empty to disable)")
	seed := flag.Int64("seed", 0, "Random seed (0 = time based)")
	printState := flag.Bool("print-state", false, "Print current button state and exit")

	flag.Parse()

	cfg, err := buildConfig(flagValues{
		appID:     *appID,
		channel:   *channel,
		lid:       *lid,
		dest:      *dest,
		pin:       *pin,
		sleep:     *sleep,
		tolerance: *tolerance,
		txTimeout: *txTimeout,
	})
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	opts := options{
		cfg:            cfg,
		tick:           *tick,
		debounce:       *debounce,
		chip:           *chip,
		fakeButton:     *fakeButton,
		broker:         *brokerAddr,
		embeddedBroker: *embedded,
		httpAddr:       *httpAddr,
		seed:           *seed,
		printState:     *printState,
	}
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// flagValues holds numeric flags as parsed, before narrowing.
type flagValues struct {
	appID, channel, lid, dest uint
	pin                       int
	sleep, tolerance          time.Duration
	txTimeout                 time.Duration
}

// buildConfig range-checks the raw flag values, narrows them into a
// logic.Config and validates the result.
func buildConfig(v flagValues) (logic.Config, error) {
	var errs []error
	checkUint := func(name string, val, max uint) {
		if val > max {
			errs = append(errs, fmt.Errorf("%s %d out of range 0..%d", name, val, max))
		}
	}
	checkUint("app id", v.appID, math.MaxUint32)
	checkUint("channel", v.channel, math.MaxUint8)
	checkUint("logical id", v.lid, math.MaxUint8)
	checkUint("destination", v.dest, math.MaxUint8)
	if v.pin < 0 || v.pin > 30 {
		errs = append(errs, fmt.Errorf("button pin %d out of range 0..30", v.pin))
	}
	checkMs := func(name string, d time.Duration) {
		if d < 0 || d.Milliseconds() > math.MaxUint32 {
			errs = append(errs, fmt.Errorf("%s %v out of range 0..%dms", name, d, uint32(math.MaxUint32)))
		}
	}
	checkMs("sleep", v.sleep)
	checkMs("sleep tolerance", v.tolerance)
	checkMs("tx timeout", v.txTimeout)
	if len(errs) > 0 {
		return logic.Config{}, errors.Join(errs...)
	}

	cfg := logic.DefaultConfig()
	cfg.AppID = uint32(v.appID)
	cfg.Channel = uint8(v.channel)
	cfg.LogicalID = uint8(v.lid)
	cfg.Dest = logic.Destination(v.dest)
	cfg.ButtonPin = uint8(v.pin)
	cfg.SleepMs = uint32(v.sleep.Milliseconds())
	cfg.SleepToleranceMs = uint32(v.tolerance.Milliseconds())
	cfg.TxTimeoutMs = uint32(v.txTimeout.Milliseconds())
	if err := cfg.Validate(); err != nil {
		return logic.Config{}, err
	}
	return cfg, nil
}

func run(opts options) error {
	cfg := opts.cfg

	// Initialize button input
	sampler, err := openSampler(opts)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer sampler.Close()

	// Print state mode
	if opts.printState {
		raw, mask := sampler.Read()
		obs := logic.ButtonObservation{Raw: raw, ChangeMask: mask}
		fmt.Printf("button pin %d: %s (raw=%#08x mask=%#08x)\n",
			cfg.ButtonPin, pressedString(obs.Pressed(cfg.ButtonPin)), raw, mask)
		return nil
	}

	var gateway web.Gateway
	if opts.embeddedBroker != "" {
		gw, err := broker.New(opts.embeddedBroker)
		if err != nil {
			return fmt.Errorf("init embedded broker: %w", err)
		}
		if err := gw.Serve(); err != nil {
			return fmt.Errorf("start embedded broker: %w", err)
		}
		defer gw.Close()
		log.Printf("embedded broker listening on %s", gw.Addr())
		gateway = gw
	}

	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Initialize MQTT
	net := mqtt.Network{AppID: cfg.AppID, Channel: cfg.Channel}
	link, err := mqtt.NewRealTransmitter(opts.broker, net, cfg.LogicalID, rng)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer link.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		AppID:            cfg.AppID,
		Channel:          cfg.Channel,
		LogicalID:        cfg.LogicalID,
		ButtonPin:        cfg.ButtonPin,
		SleepMs:          cfg.SleepMs,
		SleepToleranceMs: cfg.SleepToleranceMs,
		TickMs:           opts.tick.Milliseconds(),
		Broker:           opts.broker,
		HTTPPort:         opts.httpAddr,
	})
	tracker.SetMQTTConnected(link.IsConnected())

	// Publish startup event with full status snapshot
	startupEvent := mqtt.SystemEvent{
		Timestamp:  time.Now(),
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "STARTUP", ""),
	}
	if err := link.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker, gateway)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", opts.httpAddr)
	}

	log.Printf("started: tick=%v sleep=%dms±%dms broker=%s seed=%d", opts.tick, cfg.SleepMs, cfg.SleepToleranceMs, opts.broker, seed)

	ticker := time.NewTicker(opts.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sampler, link, tracker, cfg, rng, time.Now, time.After, ticker.C, sigCh)
}

func openSampler(opts options) (gpio.Sampler, error) {
	if opts.fakeButton {
		return gpio.NewFakeSampler([]gpio.Sample{gpio.Released()}), nil
	}
	return gpio.NewRealSampler(opts.chip, int(opts.cfg.ButtonPin), opts.debounce)
}

// nodeLink is the transmitter side the scheduler needs.
type nodeLink interface {
	logic.Transmitter
	mqtt.SystemPublisher
	mqtt.ConnectionStatus
}

// runLoop runs the node, restarting it from cold boot after every reset,
// until a signal arrives.
func runLoop(sampler logic.InputSampler, link nodeLink, tracker *status.Tracker, cfg logic.Config, rng logic.Random, now func() time.Time, after func(time.Duration) <-chan time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		err := runNode(sampler, link, tracker, cfg, rng, now, after, tick, sig)
		if !errors.Is(err, errReset) {
			return err
		}
		log.Printf("restarting from cold boot")
	}
}

// runNode plays the host scheduler for one boot of the node: cold boot,
// boot, then a controller tick per scheduler tick. A sleep request stops
// ticks until the wake timer fires; a reset request ends the run.
func runNode(sampler logic.InputSampler, link nodeLink, tracker *status.Tracker, cfg logic.Config, rng logic.Random, now func() time.Time, after func(time.Duration) <-chan time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	host := power.NewHost(now)
	latch := &power.TickLatch{}
	ctrl := logic.NewController(cfg, logic.Deps{
		Input: sampler,
		Tx:    link,
		Tick:  latch,
		Power: host,
		Rand:  rng,
	})

	ctrl.OnColdBoot()
	ctrl.OnBoot()
	tracker.Booted()
	tracker.SetAsleep(false, time.Time{})
	tracker.Update(ctrl.Info())

	var wake <-chan time.Time // non-nil while asleep

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			tracker.SetMQTTConnected(link.IsConnected())
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName),
			}
			if err := link.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-wake:
			wake = nil
			tracker.SetAsleep(false, time.Time{})
			ctrl.OnWake()
			tracker.Update(ctrl.Info())

		case <-tick:
			if wake != nil {
				// asleep: the node sees no ticks
				continue
			}
			latch.Set()
			ctrl.OnTick()
			tracker.Update(ctrl.Info())
			tracker.SetMQTTConnected(link.IsConnected())

			switch req := host.Take(); req.Kind {
			case power.RequestSleep:
				wake = after(req.Duration())
				tracker.SetAsleep(true, now().Add(req.Duration()))

			case power.RequestReset:
				reason := "unknown"
				if fatal := ctrl.Info().Fatal; fatal != nil {
					reason = fatal.Error()
				}
				tracker.Reset(reason)
				event := mqtt.SystemEvent{
					Timestamp:  now(),
					Event:      "RESET",
					Reason:     reason,
					RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "RESET", reason),
				}
				if err := link.PublishSystem(event); err != nil {
					log.Printf("failed to publish reset event: %v", err)
				}
				return fmt.Errorf("%w: %s", errReset, reason)
			}
		}
	}
}

func pressedString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}
