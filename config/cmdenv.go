package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jessevdk/go-flags"
)

// CmdEnv contains the command line options. It's kept apart from the config
// struct so the options and env vars can be applied after the config files
// are loaded. Command line options override env vars, and both override
// values already in the config.
// Fields are matched to the config with reflection: a config field tagged
// `cmdenv:"Name"` takes the value of the CmdEnv field Name when that is set.
// A tag may list several names separated by commas; the first one that's set
// wins.
type CmdEnv struct {
	ConfigLocations   []string `short:"c" long:"config" env:"FIREHOSE_CONFIG" env-delim:"," default:"/etc/firehose/config.yaml" description:"config file or URL to load; may be repeated"`
	LogLevel          Level    `long:"log-level" env:"FIREHOSE_LOG_LEVEL" description:"log level (debug, info, warn, error, panic)"`
	MetricsListenAddr string   `long:"metrics-listen-addr" env:"FIREHOSE_METRICS_LISTEN_ADDR" description:"address for /metrics, /alive and /ready"`
	RedisHost         string   `long:"redis-host" env:"FIREHOSE_REDIS_HOST" description:"redis host:port for the redis publisher"`
	RedisUsername     string   `long:"redis-username" env:"FIREHOSE_REDIS_USERNAME" description:"redis username"`
	RedisPassword     string   `long:"redis-password" env:"FIREHOSE_REDIS_PASSWORD" description:"redis password"`
	OutputPath        string   `short:"o" long:"output" env:"FIREHOSE_OUTPUT" description:"file to append records to (default stdout)"`
	Version           bool     `short:"v" long:"version" description:"print version number and exit"`
	Validate          bool     `short:"V" long:"validate" description:"validate the config and exit"`
	Debug             bool     `short:"d" long:"debug" description:"shortcut for --log-level=debug"`
}

// NewCmdEnvOptions parses args. A request for help is returned as a
// *flags.Error of type flags.ErrHelp so callers can exit cleanly.
func NewCmdEnvOptions(args []string) (*CmdEnv, error) {
	opts := &CmdEnv{}

	if _, err := flags.ParseArgs(opts, args); err != nil {
		return nil, err
	}
	if opts.Debug && opts.LogLevel == UnknownLevel {
		opts.LogLevel = DebugLevel
	}

	return opts, nil
}

// GetField returns the reflect.Value for the field with the given name in the CmdEnv struct.
func (c *CmdEnv) GetField(name string) reflect.Value {
	return reflect.ValueOf(c).Elem().FieldByName(name)
}

// GetDelimiter returns the env-delim tag of the named field, if any.
func (c *CmdEnv) GetDelimiter(name string) string {
	field, ok := reflect.TypeOf(c).Elem().FieldByName(name)
	if !ok {
		return ""
	}
	return field.Tag.Get("env-delim")
}

// ApplyTags uses reflection to apply the values from the CmdEnv struct to the given struct.
// The types must match. A CmdEnv field holding its zero value is not applied.
func (c *CmdEnv) ApplyTags(s reflect.Value) error {
	return applyCmdEnvTags(s, c)
}

type getFielder interface {
	GetField(name string) reflect.Value
	GetDelimiter(name string) string
}

// applyCmdEnvTags applies the values from the given getFielder to the given
// struct, recursing into nested structs, pointers and slices.
func applyCmdEnvTags(s reflect.Value, fielder getFielder) error {
	switch s.Kind() {
	case reflect.Struct:
		t := s.Type()

		for i := 0; i < s.NumField(); i++ {
			field := s.Field(i)
			fieldType := t.Field(i)

			if tag := fieldType.Tag.Get("cmdenv"); tag != "" {
				if err := applyTag(field, fieldType, tag, fielder); err != nil {
					return err
				}
			}

			if err := applyCmdEnvTags(field, fielder); err != nil {
				return err
			}
		}

	case reflect.Ptr:
		if !s.IsNil() {
			return applyCmdEnvTags(s.Elem(), fielder)
		}

	case reflect.Slice:
		for i := 0; i < s.Len(); i++ {
			if err := applyCmdEnvTags(s.Index(i), fielder); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyTag(field reflect.Value, fieldType reflect.StructField, tag string, fielder getFielder) error {
	for _, name := range strings.Split(tag, ",") {
		value := fielder.GetField(name)
		if !value.IsValid() {
			// the tag must name a field in CmdEnv
			return fmt.Errorf("programming error -- invalid field name: %s", name)
		}
		if !field.CanSet() {
			return fmt.Errorf("programming error -- cannot set new value for: %s", fieldType.Name)
		}
		if value.IsZero() {
			continue
		}

		// a single delimited value, as read from an env var, is split up
		if delim := fielder.GetDelimiter(name); delim != "" && value.Kind() == reflect.Slice &&
			value.Type().Elem().Kind() == reflect.String && value.Len() == 1 {
			parts := strings.Split(value.Index(0).String(), delim)
			value = reflect.ValueOf(parts)
		}

		if fieldType.Type != value.Type() {
			return fmt.Errorf("programming error -- types don't match for field: %s (%v and %v)",
				fieldType.Name, fieldType.Type, value.Type())
		}
		field.Set(value)
		return nil
	}
	return nil
}
