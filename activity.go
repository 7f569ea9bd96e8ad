package rfboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mdouchement/rfboard/command"
	"github.com/mdouchement/rfboard/nvm"
	"github.com/mdouchement/rfboard/scheduler"
	"github.com/mdouchement/rfboard/sensor"
	"github.com/mdouchement/rfboard/telemetry"
)

const (
	ActivityLink        = "link"
	ActivityDiagnostics = "diagnostics"
	ActivitySensing     = "sensing"
	ActivityBattery     = "battery"
)

// Diagnostics outlasts the watchdog timeout: its deadline is one period plus the timeout.
const diagnosticsPeriod = 10 * time.Second

const (
	ReplyMalformed = "ERR malformed"
	ReplyUnknown   = "ERR unknown"
)

// Schedule returns the static activity table of the board.
// Communication runs on core 0 and measurements on core 1.
func (b *Board) Schedule() []scheduler.Entry {
	var entries []scheduler.Entry
	if b.link != nil {
		entries = append(entries, scheduler.Entry{Name: ActivityLink, Core: 0, Period: 100 * time.Millisecond, Priority: 1, Work: b.serveLink})
	}

	return append(entries,
		scheduler.Entry{Name: ActivityDiagnostics, Core: 0, Period: diagnosticsPeriod, Priority: 1,
			Timeout: diagnosticsPeriod + b.cfg.Watchdog.Timeout.Duration, Work: b.diagnose},
		scheduler.Entry{Name: ActivitySensing, Core: 1, Period: 10 * time.Millisecond, Priority: 1, Work: b.sense},
		scheduler.Entry{Name: ActivityBattery, Core: 1, Period: time.Second, Priority: 1, Work: b.monitorBattery},
	)
}

// sense samples the load voltage and both load currents then checks them against the current limit.
func (b *Board) sense(context.Context) error {
	for _, id := range []sensor.ID{sensor.LoadVoltage, sensor.LoadCurrent1, sensor.LoadCurrent2} {
		b.channels[id].Update()
	}

	for _, id := range []sensor.ID{sensor.LoadCurrent1, sensor.LoadCurrent2} {
		ch := b.channels[id]
		current := ch.Debounced()
		exceeded := ch.Primed() && b.limiter.Exceeded(current)

		b.mu.Lock()
		changed := b.overcurrent[id] != exceeded
		b.overcurrent[id] = exceeded
		b.mu.Unlock()

		if !changed {
			continue
		}

		if !exceeded {
			b.log.Infof("%s: back under the current limit (%.3fA)", id, current)
			continue
		}

		msg := fmt.Sprintf("%.3fA above limit %.3fA", current, b.limiter.Limit())
		b.log.Warnf("%s: %s", id, msg)
		b.notify(telemetry.Event{Event: telemetry.EventOvercurrent, Source: id.String(), Message: msg})
	}

	return nil
}

// monitorBattery samples the battery and warns when its voltage becomes critical.
func (b *Board) monitorBattery(context.Context) error {
	ch := b.channels[sensor.BatteryVoltage]
	ch.Update()

	voltage := ch.Debounced()
	soc := b.soc.Percent(voltage)
	critical := ch.Primed() && b.soc.Critical(voltage)

	b.log.Debugf("Battery voltage: %.2fV - SoC: %d%%", voltage, soc)

	b.mu.Lock()
	changed := b.critical != critical
	b.critical = critical
	b.mu.Unlock()

	if changed {
		if critical {
			msg := fmt.Sprintf("%.2fV (%d%%)", voltage, soc)
			b.log.Warnf("Battery critical: %s", msg)
			b.notify(telemetry.Event{Event: telemetry.EventCritical, Source: sensor.BatteryVoltage.String(), Message: msg})
		} else {
			b.log.Infof("Battery recovered: %.2fV (%d%%)", voltage, soc)
		}
	}

	select {
	case b.events <- event{name: eventRefreshWatchers}:
	default:
		// The monitor is already busy, next cycle will refresh it.
	}

	return nil
}

// diagnose logs the runtime and activity statistics then publishes the status.
func (b *Board) diagnose(context.Context) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := b.Status()
	b.log.Infof("Uptime: %s - Goroutines: %d - Heap: %d KiB - GC: %d", status.Uptime, runtime.NumGoroutine(), m.HeapAlloc>>10, m.NumGC)

	stats := make([]string, 0, len(status.Activities))
	for _, stat := range status.Activities {
		stats = append(stats, fmt.Sprintf("%s(core %d): %d cycles, last %s", stat.Name, stat.Core, stat.Cycles, stat.LastRun))
	}
	b.log.Info(strings.Join(stats, " - "))

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("serialize status: %w", err) // Should never happen
	}

	if err = b.publisher.PublishStatus(payload); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

// serveLink answers every frame received since the previous cycle.
func (b *Board) serveLink(context.Context) error {
	frames, err := b.link.ReadFrames()
	if err != nil {
		if len(frames) == 0 {
			return fmt.Errorf("read frames: %w", err)
		}
		b.log.WithError(err).Warn("Some frames were dropped")
	}

	var errs []error
	for _, frame := range frames {
		if err := b.link.WriteFrame(b.execute(frame)); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// execute validates and runs one command frame and returns the reply.
func (b *Board) execute(frame string) string {
	res := b.validator.Validate(frame)
	switch res.Class {
	case command.Malformed:
		b.log.Warn("Malformed command received")
		return ReplyMalformed
	case command.Unknown:
		b.log.Warnf("Unknown command received: %q", frame)
		return ReplyUnknown
	}

	b.mu.Lock()
	b.lastCommand = res.Kind.String()
	b.mu.Unlock()

	switch res.Kind {
	case command.SetFreq:
		frequency, err := strconv.ParseFloat(res.Argument, 64)
		if err != nil || frequency <= 0 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
			b.log.Warnf("Invalid frequency: %q", res.Argument)
			return ReplyMalformed
		}

		b.log.Infof("Setting frequency to %s", res.Argument)
		b.mu.Lock()
		b.frequency = res.Argument
		b.mu.Unlock()

		if err := b.store.Save(nvm.KeyFrequency, res.Argument); err != nil {
			b.log.WithError(err).Error("Could not persist frequency")
		}
		return "OK " + res.Kind.Keyword()
	case command.GetStatus:
		b.log.Info("Getting status")

		payload, err := json.Marshal(b.Status())
		if err != nil {
			b.log.WithError(err).Error("Could not serialize status") // Should never happen
			return "ERR internal"
		}
		return string(payload)
	default:
		return ReplyUnknown
	}
}
