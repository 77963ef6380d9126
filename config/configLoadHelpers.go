package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatUnknown Format = "unknown"
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
	FormatTOML    Format = "toml"
)

// remoteConfigTimeout bounds fetching a config over http.
const remoteConfigTimeout = 10 * time.Second

// formatFromFilename returns the format of the file based on the filename extension.
func formatFromFilename(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// formatFromResponse returns the format of the file based on the Content-Type header.
func formatFromResponse(resp *http.Response) Format {
	contentType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	switch strings.TrimSpace(contentType) {
	case "application/json", "text/json":
		return FormatJSON
	case "application/x-toml", "application/toml", "text/x-toml", "text/toml":
		return FormatTOML
	case "application/x-yaml", "application/yaml", "text/x-yaml", "text/yaml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// getReaderFor returns an io.ReadCloser for the given URL or filename.
func getReaderFor(u string) (io.ReadCloser, Format, error) {
	if u == "" {
		return nil, FormatUnknown, errors.New("empty config location")
	}
	uu, err := url.Parse(u)
	if err != nil {
		return nil, FormatUnknown, errors.Wrapf(err, "invalid config location %q", u)
	}
	switch uu.Scheme {
	case "file", "": // an empty scheme is a filename
		r, err := os.Open(uu.Path)
		if err != nil {
			return nil, FormatUnknown, err
		}
		return r, formatFromFilename(uu.Path), nil
	case "http", "https":
		client := &http.Client{Timeout: remoteConfigTimeout}
		resp, err := client.Get(u)
		if err != nil {
			return nil, FormatUnknown, err
		}
		if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			return nil, FormatUnknown, errors.Errorf("fetching %s: %s", u, resp.Status)
		}
		format := formatFromResponse(resp)
		// fall back on the path if the server didn't say
		if format == FormatUnknown {
			format = formatFromFilename(uu.Path)
		}
		return resp.Body, format, nil
	default:
		return nil, FormatUnknown, errors.Errorf("unknown scheme %q", uu.Scheme)
	}
}

func load(r io.Reader, format Format, into any) error {
	switch format {
	case FormatYAML:
		return yaml.NewDecoder(r).Decode(into)
	case FormatTOML:
		return toml.NewDecoder(r).Decode(into)
	case FormatJSON:
		return json.NewDecoder(r).Decode(into)
	default:
		return errors.New("unable to determine data format")
	}
}

// loadConfigsInto loads all the named configs into dest in the order they are
// listed, so later files override earlier ones. It returns the MD5 hash of
// everything read.
func loadConfigsInto(dest any, locations []string) (string, error) {
	h := md5.New()
	for _, location := range locations {
		location := strings.TrimSpace(location)
		if err := loadOne(dest, location, h); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func loadOne(dest any, location string, h io.Writer) error {
	r, format, err := getReaderFor(location)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := load(io.TeeReader(r, h), format, dest); err != nil {
		return errors.Wrapf(err, "unable to load config %s", location)
	}
	return nil
}

// readConfigInto reads the config from the given locations, fills in defaults
// and then applies command line and environment overrides.
func readConfigInto(dest any, locations []string, opts *CmdEnv) (string, error) {
	hash, err := loadConfigsInto(dest, locations)
	if err != nil {
		return hash, err
	}

	if opts == nil {
		return hash, nil
	}

	// defaults.Set also walks slices, so every stream gets its defaults here
	if err := defaults.Set(dest); err != nil {
		return hash, errors.Wrap(err, "unable to apply defaults")
	}

	if err := opts.ApplyTags(reflect.ValueOf(dest)); err != nil {
		return hash, errors.Wrap(err, "unable to apply command line options")
	}

	return hash, nil
}
