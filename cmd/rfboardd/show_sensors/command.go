package showsensors

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mdouchement/rfboard"
	"github.com/mdouchement/rfboard/hwmon/adc"
	"github.com/mdouchement/rfboard/sensor"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var cpath string

	cmd := &cobra.Command{
		Use:   "show-sensors",
		Short: "Show the available ADC devices and the board channels",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			devices, err := adc.Devices()
			if err != nil && len(devices) == 0 {
				return err
			}

			slices.SortStableFunc(devices, func(a, b adc.Device) int {
				return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
			})

			for _, d := range devices {
				fmt.Printf("%-12s \"%s\"   %s\n", d.Key, d.Name, strings.Join(d.Channels, " "))
			}

			cfg, err := rfboard.Load(cpath)
			if errors.Is(err, os.ErrNotExist) {
				return nil // Nothing configured yet, devices listing is enough.
			}
			if err != nil {
				return err
			}

			mapping, err := cfg.ADC.Mapping()
			if err != nil {
				return err
			}

			sysfs, err := adc.Open(cfg.ADC.Device, mapping)
			if err != nil {
				return err
			}

			conversions := map[sensor.ID]sensor.Conversion{
				sensor.BatteryVoltage: sensor.Battery(cfg.Battery.DividerRatio, cfg.Battery.Cells),
				sensor.LoadVoltage:    sensor.Voltage(cfg.Load.DividerRatio),
				sensor.LoadCurrent1:   sensor.Current(cfg.Load.ShuntOhms, cfg.Load.Gain),
				sensor.LoadCurrent2:   sensor.Current(cfg.Load.ShuntOhms, cfg.Load.Gain),
			}
			units := map[sensor.ID]sensor.Unit{
				sensor.BatteryVoltage: sensor.Volt,
				sensor.LoadVoltage:    sensor.Volt,
				sensor.LoadCurrent1:   sensor.Ampere,
				sensor.LoadCurrent2:   sensor.Ampere,
			}

			fmt.Println()
			for _, id := range sensor.IDs {
				mv, err := sysfs.ReadRaw(id)
				if err != nil {
					fmt.Printf("%-16s in_voltage%d   %v\n", id, mapping[id], err)
					continue
				}

				fmt.Printf("%-16s in_voltage%d   %5dmV   %7.3f%s\n", id, mapping[id], mv, conversions[id](mv), units[id])
			}

			return nil
		},
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", rfboard.DefaultConfigPath, "Configfile path")

	return cmd
}
