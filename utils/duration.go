package utils

import (
	"encoding/json"
	"time"

	"golang.org/x/xerrors"
)

// Duration is a wrapper of time.Duration that can be parsed from
// human readable strings (e.g., "30s", "5m") in YAML and JSON
type Duration time.Duration

// Get returns the value as time.Duration
func (d Duration) Get() time.Duration {
	return time.Duration(d)
}

// MarshalJSON ...
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON ...
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	err := json.Unmarshal(b, &v)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal duration: %w", err)
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return xerrors.Errorf("failed to parse duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return xerrors.Errorf("invalid duration value %v", v)
	}
}

// MarshalYAML ...
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML ...
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var value string
	err := unmarshal(&value)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal duration: %w", err)
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return xerrors.Errorf("failed to parse duration %q: %w", value, err)
	}

	*d = Duration(parsed)
	return nil
}
