package rfboard

import (
	"encoding/json"
	"strconv"
	"time"

	"go.yaml.in/yaml/v4"
)

// Duration reads Go durations ("5s", "100ms") or a bare number of seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		var seconds float64
		if json.Unmarshal(data, &seconds) != nil {
			return err
		}
		d.Duration = time.Duration(seconds * float64(time.Second))
		return nil
	}

	return d.parse(str)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	err := value.Decode(&str)
	if err != nil {
		return err
	}

	return d.parse(str)
}

func (d *Duration) parse(str string) error {
	if str == "" {
		return nil
	}

	if seconds, err := strconv.ParseFloat(str, 64); err == nil {
		d.Duration = time.Duration(seconds * float64(time.Second))
		return nil
	}

	var err error
	d.Duration, err = time.ParseDuration(str)
	return err
}
