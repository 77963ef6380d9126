package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_formatFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Format
	}{
		{"a", "a", FormatUnknown},
		{"a.yaml", "a.yaml", FormatYAML},
		{"a.yml", "a.yml", FormatYAML},
		{"a.YAML", "a.YAML", FormatYAML},
		{"a.YML", "a.YML", FormatYAML},
		{"a.toml", "a.toml", FormatTOML},
		{"a.TOML", "a.TOML", FormatTOML},
		{"a.json", "a.json", FormatJSON},
		{"a.JSON", "a.JSON", FormatJSON},
		{"a.txt", "a.txt", FormatUnknown},
		{"a.", "a.", FormatUnknown},
		{"a", "a", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatFromFilename(tt.filename); got != tt.want {
				t.Errorf("formatFromFilename() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_formatFromResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		want Format
	}{
		{"application/json", &http.Response{Header: http.Header{"Content-Type": []string{"application/json"}}}, FormatJSON},
		{"text/json", &http.Response{Header: http.Header{"Content-Type": []string{"text/json"}}}, FormatJSON},
		{"application/x-toml", &http.Response{Header: http.Header{"Content-Type": []string{"application/x-toml"}}}, FormatTOML},
		{"application/toml", &http.Response{Header: http.Header{"Content-Type": []string{"application/toml"}}}, FormatTOML},
		{"text/x-toml", &http.Response{Header: http.Header{"Content-Type": []string{"text/x-toml"}}}, FormatTOML},
		{"text/toml", &http.Response{Header: http.Header{"Content-Type": []string{"text/toml"}}}, FormatTOML},
		{"application/x-yaml", &http.Response{Header: http.Header{"Content-Type": []string{"application/x-yaml"}}}, FormatYAML},
		{"application/yaml", &http.Response{Header: http.Header{"Content-Type": []string{"application/yaml"}}}, FormatYAML},
		{"text/x-yaml", &http.Response{Header: http.Header{"Content-Type": []string{"text/x-yaml"}}}, FormatYAML},
		{"text/yaml", &http.Response{Header: http.Header{"Content-Type": []string{"text/yaml"}}}, FormatYAML},
		{"text/plain", &http.Response{Header: http.Header{"Content-Type": []string{"text/plain"}}}, FormatUnknown},
		{"text/html", &http.Response{Header: http.Header{"Content-Type": []string{"text/html"}}}, FormatUnknown},
		{"text/xml", &http.Response{Header: http.Header{"Content-Type": []string{"text/xml"}}}, FormatUnknown},
		{"application/xml", &http.Response{Header: http.Header{"Content-Type": []string{"application/xml"}}}, FormatUnknown},
		{"application/octet-stream", &http.Response{Header: http.Header{"Content-Type": []string{"application/octet-stream"}}}, FormatUnknown},
		{"application/x-www-form-urlencoded", &http.Response{Header: http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}}, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatFromResponse(tt.resp); got != tt.want {
				t.Errorf("formatFromResponse() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Verifies that we can load a time.Duration from a string.
func Test_loadDuration(t *testing.T) {
	type dur struct {
		D Duration
	}

	tests := []struct {
		name    string
		format  Format
		text    string
		into    any
		want    any
		wantErr bool
	}{
		{"json", FormatJSON, `{"d": "15s"}`, &dur{}, &dur{Duration(15 * time.Second)}, false},
		{"yaml", FormatYAML, `d: 15s`, &dur{}, &dur{Duration(15 * time.Second)}, false},
		{"toml", FormatTOML, `d="15s"`, &dur{}, &dur{Duration(15 * time.Second)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := load(strings.NewReader(tt.text), tt.format, tt.into); (err != nil) != tt.wantErr {
				t.Errorf("load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(tt.into, tt.want) {
				t.Errorf("load() = %#v, want %#v", tt.into, tt.want)
			}
		})
	}
}

// Verifies that a Level reads from every format and rejects typos.
func Test_loadLevel(t *testing.T) {
	type lvl struct {
		L Level `yaml:"L" json:"L" toml:"L"`
	}

	tests := []struct {
		name    string
		format  Format
		text    string
		want    Level
		wantErr bool
	}{
		{"yaml", FormatYAML, `L: debug`, DebugLevel, false},
		{"json", FormatJSON, `{"L": "WARNING"}`, WarnLevel, false},
		{"toml", FormatTOML, `L="error"`, ErrorLevel, false},
		{"typo", FormatYAML, `L: inof`, UnknownLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			into := &lvl{}
			err := load(strings.NewReader(tt.text), tt.format, into)
			if (err != nil) != tt.wantErr {
				t.Errorf("load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if into.L != tt.want {
				t.Errorf("load() = %v, want %v", into.L, tt.want)
			}
		})
	}
}

func Test_loadConfigsIntoOverrides(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.yaml")
	second := filepath.Join(dir, "b.toml")
	require.NoError(t, os.WriteFile(first, []byte("Logger:\n  Type: none\n  Level: debug\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("[Logger]\nLevel = \"warn\"\n"), 0644))

	var c configContents
	hash, err := loadConfigsInto(&c, []string{first, " " + second + " "})
	require.NoError(t, err)
	assert.Len(t, hash, 32)
	assert.Equal(t, "none", c.Logger.Type, "kept from the first file")
	assert.Equal(t, WarnLevel, c.Logger.Level, "overridden by the second file")

	again, err := loadConfigsInto(&configContents{}, []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	_, err = loadConfigsInto(&c, []string{filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
	_, err = loadConfigsInto(&c, []string{"ftp://example.com/x.yaml"})
	assert.Error(t, err)
}

func Test_getReaderForHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"Logger": {"Type": "none"}}`))
	}))
	defer srv.Close()

	var c configContents
	_, err := loadConfigsInto(&c, []string{srv.URL + "/config"})
	require.NoError(t, err)
	assert.Equal(t, "none", c.Logger.Type)

	_, err = loadConfigsInto(&c, []string{srv.URL + "/missing"})
	assert.Error(t, err)
}
