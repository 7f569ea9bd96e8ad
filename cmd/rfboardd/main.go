package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rfboard"
	showsensors "github.com/mdouchement/rfboard/cmd/rfboardd/show_sensors"
	showsoc "github.com/mdouchement/rfboard/cmd/rfboardd/show_soc"
	"github.com/mdouchement/rfboard/hwmon/adc"
	"github.com/mdouchement/rfboard/link"
	"github.com/mdouchement/rfboard/nvm"
	"github.com/mdouchement/rfboard/sensor"
	"github.com/mdouchement/rfboard/telemetry"
	"github.com/mdouchement/rfboard/watchdog"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath string
	dummy bool
)

func main() {
	cmd := &cobra.Command{
		Use:     "rfboardd",
		Short:   "Monitoring and supervision daemon of the RF control board",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		RunE:    daemon,
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", rfboard.DefaultConfigPath, "Configfile path")
	cmd.Flags().BoolVarP(&dummy, "dummy", "", false, "Start rfboardd with a dummy ADC")
	cmd.AddCommand(showsoc.Command())
	cmd.AddCommand(showsensors.Command())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for rfboardd",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func daemon(_ *cobra.Command, args []string) error {
	cfg, err := rfboard.Load(cpath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	h := logger.NewSlogTextHandler(os.Stdout, &logger.SlogTextOption{
		Level:            level,
		ForceColors:      true,
		ForceFormatting:  true,
		PrefixRE:         regexp.MustCompile(`^(\[.*?\])\s`),
		DisableTimestamp: true, // Provided by journalctl
	})
	log := logger.WrapSlogHandler(h)
	ctx := logger.WithLogger(context.Background(), log)

	log.Infof("rfboardd version %s", version)

	//
	// Persistence
	//

	store, err := nvm.Open(cfg.Storage)
	if err != nil {
		return err
	}

	//
	// Analog front-end
	//

	var reader sensor.Reader = rfboard.NewDummyADC()
	if !dummy {
		mapping, err := cfg.ADC.Mapping()
		if err != nil {
			return err
		}

		sysfs, err := adc.Open(cfg.ADC.Device, mapping)
		if err != nil {
			return err
		}
		device := sysfs.Device()
		log.Infof("ADC %s (%s) on %s", device.Key, device.Name, device.Path)

		reader = sysfs
	}

	//
	// Command link
	//

	var cmdlink rfboard.Link
	switch cfg.Link.Port {
	case "":
		log.Warn("Command link disabled")
	default:
		var port *link.Port
		if cfg.Link.Port == "auto" {
			port, err = link.OpenAuto(cfg.Link.VID, cfg.Link.PID, cfg.Link.Baud)
		} else {
			port, err = link.Open(cfg.Link.Port, cfg.Link.Baud)
		}
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
		defer port.Close()

		if cfg.Debug {
			port.SetLogger(log.WithPrefix("[link]"))
		}
		log.Infof("Command link on `%s`", port.Name())

		cmdlink = port
	}

	//
	// Telemetry
	//

	var publisher telemetry.Publisher = telemetry.Discard{}
	if cfg.MQTT.Broker != "" {
		mqtt, err := telemetry.NewMQTT(telemetry.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			return err
		}
		log.Infof("Publishing telemetry to %s", cfg.MQTT.Broker)

		publisher = mqtt
	}

	//
	// Board
	//

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	board, err := rfboard.New(cfg, reader, cmdlink, store, publisher, watchdog.ExitEscalator{Log: log})
	if err != nil {
		return err
	}
	if err = board.Launch(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	cancel()
	<-board.Done()

	log.Info("Gracefully shutdown")
	return nil
}
