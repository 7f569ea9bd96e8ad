package rfboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rfboard/calc"
	"github.com/mdouchement/rfboard/command"
	"github.com/mdouchement/rfboard/nvm"
	"github.com/mdouchement/rfboard/scheduler"
	"github.com/mdouchement/rfboard/sensor"
	"github.com/mdouchement/rfboard/telemetry"
	"github.com/mdouchement/rfboard/watchdog"
)

// A Board wires the sensor channels, the derived-state calculators, the command link
// and the telemetry to the periodic activities supervised by the watchdog.
type Board struct {
	cfg       Config
	reader    sensor.Reader
	link      Link
	store     nvm.Store
	publisher telemetry.Publisher
	escalator watchdog.Escalator

	soc       calc.StateOfCharge
	limiter   *calc.Limiter
	validator command.Validator
	channels  map[sensor.ID]*sensor.Channel
	watchdog  *watchdog.Supervisor
	scheduler *scheduler.Scheduler

	mu          sync.Mutex
	frequency   string
	lastCommand string
	critical    bool
	overcurrent map[sensor.ID]bool

	log      logger.Logger
	started  time.Time
	events   chan event
	stopping <-chan struct{}
	done     chan struct{}
	listener net.Listener
	server   *http.Server
}

// New creates a board. link and publisher are optional.
func New(cfg Config, reader sensor.Reader, link Link, store nvm.Store, publisher telemetry.Publisher, escalator watchdog.Escalator) (*Board, error) {
	if publisher == nil {
		publisher = telemetry.Discard{}
	}
	if store == nil {
		store = nvm.NewMemory()
	}

	b := &Board{
		cfg:       cfg,
		reader:    reader,
		link:      link,
		store:     store,
		publisher: publisher,
		escalator: escalator,
		soc: calc.StateOfCharge{
			Full:  cfg.Battery.Full,
			Empty: cfg.Battery.Empty,
		},
		limiter:     calc.NewLimiter(cfg.Current.Ceiling),
		validator:   command.NewValidator(cfg.Commands.Matching),
		overcurrent: make(map[sensor.ID]bool),
		events:      make(chan event, 10),
		done:        make(chan struct{}),
	}

	if cfg.Socket == "" {
		return b, nil
	}

	err := os.MkdirAll(filepath.Dir(cfg.Socket), 0o755)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if _, err := os.Stat(cfg.Socket); err == nil {
		fmt.Printf("Removing existing %s\n", cfg.Socket)
		os.Remove(cfg.Socket)
	}
	b.listener, err = net.Listen("unix", cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	return b, nil
}

// setup restores the persisted settings and builds the channels, the watchdog and the scheduler.
func (b *Board) setup(log logger.Logger) {
	b.log = log
	b.restore()

	b.channels = map[sensor.ID]*sensor.Channel{
		sensor.BatteryVoltage: sensor.NewChannel(sensor.BatteryVoltage, sensor.Volt,
			sensor.Battery(b.cfg.Battery.DividerRatio, b.cfg.Battery.Cells), b.reader, log.WithPrefix("[battery]")),
		sensor.LoadVoltage: sensor.NewChannel(sensor.LoadVoltage, sensor.Volt,
			sensor.Voltage(b.cfg.Load.DividerRatio), b.reader, log.WithPrefix("[voltage]")),
		sensor.LoadCurrent1: sensor.NewChannel(sensor.LoadCurrent1, sensor.Ampere,
			sensor.Current(b.cfg.Load.ShuntOhms, b.cfg.Load.Gain), b.reader, log.WithPrefix("[current]")),
		sensor.LoadCurrent2: sensor.NewChannel(sensor.LoadCurrent2, sensor.Ampere,
			sensor.Current(b.cfg.Load.ShuntOhms, b.cfg.Load.Gain), b.reader, log.WithPrefix("[current]")),
	}

	var opts []watchdog.Option
	if b.cfg.Watchdog.TouchDir != "" {
		opts = append(opts, watchdog.WithTouchDir(b.cfg.Watchdog.TouchDir))
	}
	b.watchdog = watchdog.New(log, b.escalator, opts...)
	b.scheduler = scheduler.New(log, b.watchdog, b.cfg.Watchdog.Timeout.Duration, b.Schedule()...)
}

func (b *Board) restore() {
	if v, err := b.store.Load(nvm.KeyCurrentLimit); err == nil {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			b.log.WithError(err).Warnf("Invalid stored current limit %q", v)
		} else {
			b.log.Infof("Restored current limit %.3fA", b.limiter.Set(limit))
		}
	} else if !errors.Is(err, nvm.ErrNotFound) {
		b.log.WithError(err).Warn("Could not load current limit")
	}

	if v, err := b.store.Load(nvm.KeyFrequency); err == nil {
		b.mu.Lock()
		b.frequency = v
		b.mu.Unlock()
		b.log.Infof("Restored frequency %s", v)
	} else if !errors.Is(err, nvm.ErrNotFound) {
		b.log.WithError(err).Warn("Could not load frequency")
	}
}

// Launch starts the board until ctx is done.
func (b *Board) Launch(ctx context.Context) error {
	log := logger.LogWith(ctx)

	b.setup(log)
	b.started = time.Now()
	b.stopping = ctx.Done()

	go b.eventLoop(ctx)

	if b.listener != nil {
		b.server = &http.Server{Handler: b.Handler(log)}
		go func() {
			log.Infof("Starting HTTP server on %s", b.listener.Addr())
			err := b.server.Serve(b.listener)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Could not serve HTTP")
			}
		}()
	}

	go b.watchdog.Run(ctx)

	if err := b.scheduler.Start(ctx); err != nil {
		b.closeServer(log)
		close(b.done)
		return fmt.Errorf("scheduler: %w", err)
	}

	b.notify(telemetry.Event{Event: telemetry.EventStartup})

	go func() {
		<-ctx.Done()
		b.shutdown(log)
		close(b.done)
	}()

	return nil
}

// Done is closed once the board is fully stopped.
func (b *Board) Done() <-chan struct{} {
	return b.done
}

func (b *Board) shutdown(log logger.Logger) {
	b.scheduler.Stop()

	err := b.publisher.PublishEvent(telemetry.Event{Timestamp: time.Now(), Event: telemetry.EventShutdown})
	if err != nil {
		log.WithError(err).Warn("Could not publish shutdown")
	}
	if err = b.publisher.Close(); err != nil {
		log.WithError(err).Error("Could not close telemetry")
	}

	b.closeServer(log)
}

func (b *Board) closeServer(log logger.Logger) {
	if b.listener == nil {
		return
	}

	if b.server != nil {
		if err := b.server.Close(); err != nil {
			log.WithError(err).Error("Could not close HTTP server")
		}
	}
	if err := b.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.WithError(err).Error("Could not close socket listener")
	}
	if err := os.Remove(b.cfg.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Errorf("Could not remove socket %s", b.cfg.Socket)
	}
}

// SetLimit applies and persists a new current limit. It returns the applied value.
func (b *Board) SetLimit(requested float64) float64 {
	applied := b.limiter.Set(requested)
	if applied != requested {
		b.log.Warnf("Requested current limit %.3fA clamped to %.3fA", requested, applied)
	} else {
		b.log.Infof("Current limit set to %.3fA", applied)
	}

	if err := b.store.Save(nvm.KeyCurrentLimit, strconv.FormatFloat(applied, 'f', -1, 64)); err != nil {
		b.log.WithError(err).Error("Could not persist current limit")
	}

	return applied
}

// Status returns a snapshot of the board. Derived values are computed on every call.
func (b *Board) Status() Status {
	s := Status{
		Timestamp:      time.Now(),
		CurrentLimit:   b.limiter.Limit(),
		CurrentCeiling: b.limiter.Ceiling(),
		Watchdog:       "stopped",
	}
	if !b.started.IsZero() {
		s.Uptime = Duration{Duration: time.Since(b.started).Truncate(time.Second)}
	}

	for _, id := range sensor.IDs {
		ch, ok := b.channels[id]
		if !ok {
			continue
		}

		s.Channels = append(s.Channels, ChannelStatus{
			ID:        id.String(),
			Unit:      string(ch.Unit()),
			Raw:       ch.Raw(),
			Debounced: ch.Debounced(),
			Primed:    ch.Primed(),
		})

		if id == sensor.BatteryVoltage {
			v := ch.Debounced()
			s.StateOfCharge = b.soc.Percent(v)
			s.BatteryCritical = ch.Primed() && b.soc.Critical(v)
		}
	}

	b.mu.Lock()
	s.Frequency = b.frequency
	s.LastCommand = b.lastCommand
	for _, id := range sensor.IDs {
		if b.overcurrent[id] {
			s.Overcurrent = append(s.Overcurrent, id.String())
		}
	}
	b.mu.Unlock()

	if b.watchdog != nil {
		s.Watchdog = b.watchdog.State().String()
	}
	if b.scheduler != nil {
		s.Activities = b.scheduler.Stats()
	}

	return s
}

// notify publishes an event without blocking the calling activity.
func (b *Board) notify(e telemetry.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	go func() {
		if err := b.publisher.PublishEvent(e); err != nil {
			b.log.WithError(err).Warnf("Could not publish %s event", e.Event)
		}
	}()
}
