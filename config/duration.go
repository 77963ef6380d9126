package config

import "time"

// Duration is a time.Duration that reads and writes itself as a string like
// "90s" in every supported config format.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalFlag lets go-flags parse a Duration from the command line.
func (d *Duration) UnmarshalFlag(value string) error {
	return d.UnmarshalText([]byte(value))
}
