package output

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/firehose/config"
)

func TestFilterApply(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.OutputConfig
		record   string
		want     string
		wantKeep bool
		wantErr  bool
	}{
		{
			name:     "raw passes through untouched",
			cfg:      config.OutputConfig{Format: FormatRaw},
			record:   `{"b": 2, "a": 1}`,
			want:     `{"b": 2, "a": 1}`,
			wantKeep: true,
		},
		{
			name:     "raw doesn't validate unless asked",
			cfg:      config.OutputConfig{},
			record:   `not json`,
			want:     `not json`,
			wantKeep: true,
		},
		{
			name:    "validate rejects garbage",
			cfg:     config.OutputConfig{Validate: true},
			record:  `{"a":`,
			wantErr: true,
		},
		{
			name:     "compact sorts keys and keeps big numbers exact",
			cfg:      config.OutputConfig{Format: FormatCompact},
			record:   "{ \"id\": 1234567890123456789,\n  \"a\": [1, 2] }",
			want:     `{"a":[1,2],"id":1234567890123456789}`,
			wantKeep: true,
		},
		{
			name:     "pretty",
			cfg:      config.OutputConfig{Format: FormatPretty},
			record:   `{"a":{"b":true}}`,
			want:     "{\n  \"a\": {\n    \"b\": true\n  }\n}",
			wantKeep: true,
		},
		{
			name:     "select picks a nested value",
			cfg:      config.OutputConfig{Select: "user.screen_name"},
			record:   `{"text":"hi","user":{"screen_name":"gopher"}}`,
			want:     `"gopher"`,
			wantKeep: true,
		},
		{
			name:   "select drops records without the path",
			cfg:    config.OutputConfig{Select: "user.screen_name"},
			record: `{"delete":{"id":1}}`,
		},
		{
			name:     "select then compact",
			cfg:      config.OutputConfig{Select: "user", Format: FormatCompact},
			record:   `{"user": {"z": 1, "a": "x"}}`,
			want:     `{"a":"x","z":1}`,
			wantKeep: true,
		},
		{
			name:    "compact fails on garbage",
			cfg:     config.OutputConfig{Format: FormatCompact},
			record:  `{{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.cfg)
			require.NoError(t, err)
			out, keep, err := f.Apply([]byte(tt.record))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRecord))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeep, keep)
			if tt.wantKeep {
				assert.Equal(t, tt.want, string(out))
			}
		})
	}
}

func TestFilterDedupe(t *testing.T) {
	f, err := NewFilter(config.OutputConfig{DedupeField: "id_str", DedupeCacheSize: 2})
	require.NoError(t, err)

	apply := func(record string) bool {
		_, keep, err := f.Apply([]byte(record))
		require.NoError(t, err)
		return keep
	}
	assert.True(t, apply(`{"id_str":"1"}`))
	assert.False(t, apply(`{"id_str":"1","text":"again"}`), "repeat is dropped")
	assert.True(t, apply(`{"text":"no id"}`), "records without the field always pass")
	assert.True(t, apply(`{"text":"no id"}`))
	assert.True(t, apply(`{"id_str":"2"}`))
	assert.True(t, apply(`{"id_str":"3"}`))
	assert.True(t, apply(`{"id_str":"1"}`), "evicted from the cache, so seen as new")
}

func TestNewFilterRejectsUnknownFormat(t *testing.T) {
	_, err := NewFilter(config.OutputConfig{Format: "yaml"})
	assert.Error(t, err)
}
