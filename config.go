package rfboard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/mdouchement/rfboard/calc"
	"github.com/mdouchement/rfboard/command"
	"github.com/mdouchement/rfboard/sensor"
	"go.yaml.in/yaml/v4"
)

const DefaultConfigPath = "/etc/rfboard/rfboard.yml"

type Config struct {
	Debug    bool           `yaml:"debug"`
	Socket   string         `yaml:"socket"`
	Storage  string         `yaml:"storage"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Battery  BatteryConfig  `yaml:"battery"`
	Load     LoadConfig     `yaml:"load"`
	Current  CurrentConfig  `yaml:"current"`
	ADC      ADCConfig      `yaml:"adc"`
	Link     LinkConfig     `yaml:"link"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Commands CommandsConfig `yaml:"commands"`
}

type WatchdogConfig struct {
	Timeout  Duration `yaml:"timeout"`
	TouchDir string   `yaml:"touch_dir"`
}

type BatteryConfig struct {
	Full         float64 `yaml:"full"`
	Empty        float64 `yaml:"empty"`
	DividerRatio float64 `yaml:"divider_ratio"`
	Cells        int     `yaml:"cells"`
}

type LoadConfig struct {
	DividerRatio float64 `yaml:"divider_ratio"`
	ShuntOhms    float64 `yaml:"shunt_ohms"`
	Gain         float64 `yaml:"gain"`
}

type CurrentConfig struct {
	// Ceiling is the highest current limit a client can request, in amperes.
	Ceiling float64 `yaml:"ceiling"`
}

type ADCConfig struct {
	Device   string         `yaml:"device"`
	Channels map[string]int `yaml:"channels"`
}

type LinkConfig struct {
	// Port is a tty path, "auto" to look it up or empty to disable the command link.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	VID  string `yaml:"vid"`
	PID  string `yaml:"pid"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type CommandsConfig struct {
	Matching command.Matching `yaml:"matching"`
}

// Default returns the board settings of the reference hardware.
func Default() Config {
	return Config{
		Socket:  "/run/rfboard/rfboard.sock",
		Storage: "/var/lib/rfboard/nvm.yml",
		Watchdog: WatchdogConfig{
			Timeout: Duration{Duration: 5 * time.Second},
		},
		Battery: BatteryConfig{
			Full:         calc.FullVoltage3S,
			Empty:        calc.EmptyVoltage3S,
			DividerRatio: 2.0,
			Cells:        3,
		},
		Load: LoadConfig{
			DividerRatio: 10.0,
			ShuntOhms:    0.015,
			Gain:         20.0,
		},
		Current: CurrentConfig{
			Ceiling: calc.SafeCurrentLimit,
		},
		ADC: ADCConfig{
			Device: "iio:device0",
			Channels: map[string]int{
				sensor.BatteryVoltage.String(): 0,
				sensor.LoadVoltage.String():    1,
				sensor.LoadCurrent1.String():   2,
				sensor.LoadCurrent2.String():   3,
			},
		},
		Link: LinkConfig{
			Baud: 115200,
		},
		MQTT: MQTTConfig{
			ClientID: "rfboard",
			Topic:    "rfboard",
		},
		Commands: CommandsConfig{
			Matching: command.MatchToken,
		},
	}
}

// Load reads the YAML file at path over the default settings.
func Load(path string) (Config, error) {
	c := Default()

	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()

	codec := yaml.NewDecoder(f)
	err = codec.Decode(&c)
	if err != nil && !errors.Is(err, io.EOF) {
		return c, err
	}

	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.Watchdog.Timeout.Duration <= time.Second {
		return fmt.Errorf("watchdog.timeout: must be greater than 1s")
	}

	if c.Battery.Full <= c.Battery.Empty {
		return fmt.Errorf("battery: full (%.2fV) must be greater than empty (%.2fV)", c.Battery.Full, c.Battery.Empty)
	}
	if c.Battery.DividerRatio <= 0 {
		return fmt.Errorf("battery.divider_ratio: must be positive")
	}
	if c.Battery.Cells < 1 {
		return fmt.Errorf("battery.cells: must be at least 1")
	}

	if c.Load.DividerRatio <= 0 {
		return fmt.Errorf("load.divider_ratio: must be positive")
	}
	if c.Load.ShuntOhms <= 0 || c.Load.Gain <= 0 {
		return fmt.Errorf("load: shunt_ohms and gain must be positive")
	}

	if c.Current.Ceiling <= 0 || c.Current.Ceiling > calc.SafeCurrentLimit {
		return fmt.Errorf("current.ceiling: must be in range ]0,%g]", calc.SafeCurrentLimit)
	}

	if _, err := c.ADC.Mapping(); err != nil {
		return fmt.Errorf("adc: %w", err)
	}

	if c.Link.Baud < 0 {
		return fmt.Errorf("link.baud: must be positive")
	}

	if _, err := command.ParseMatching(string(c.Commands.Matching)); err != nil {
		return fmt.Errorf("commands.matching: %w", err)
	}

	return nil
}

// Mapping resolves the channel names to the ADC input indexes.
func (c ADCConfig) Mapping() (map[sensor.ID]int, error) {
	mapping := make(map[sensor.ID]int, len(c.Channels))
	var indexes []int
	for name, index := range c.Channels {
		id, err := sensor.ParseID(name)
		if err != nil {
			return nil, err
		}
		if index < 0 {
			return nil, fmt.Errorf("%s: invalid input index %d", name, index)
		}
		if slices.Contains(indexes, index) {
			return nil, fmt.Errorf("%s: input %d already used", name, index)
		}
		indexes = append(indexes, index)

		mapping[id] = index
	}

	for _, id := range sensor.IDs {
		if _, ok := mapping[id]; !ok {
			return nil, fmt.Errorf("%s: missing channel", id)
		}
	}

	return mapping, nil
}
