package output

import (
	"bytes"

	lru "github.com/hashicorp/golang-lru/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/valyala/fastjson"

	"github.com/honeycombio/firehose/config"
)

// ErrInvalidRecord is returned for records that aren't JSON. The stream
// treats it as an ordinary item error.
var ErrInvalidRecord = errors.New("record is not valid JSON")

// Formats accepted in OutputConfig.Format.
const (
	FormatRaw     = "raw"
	FormatCompact = "compact"
	FormatPretty  = "pretty"
)

var jsonAPI = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

var prettyOptions = &pretty.Options{Width: 80, Indent: "  "}

// Filter decides which records are passed on and how they're shaped. One
// Filter is used per stream; it is safe for concurrent use.
type Filter struct {
	validate    bool
	selectPath  string
	dedupeField string
	format      string
	seen        *lru.Cache[string, struct{}]
}

func NewFilter(cfg config.OutputConfig) (*Filter, error) {
	f := &Filter{
		validate:    cfg.Validate,
		selectPath:  cfg.Select,
		dedupeField: cfg.DedupeField,
		format:      cfg.Format,
	}
	if f.format == "" {
		f.format = FormatRaw
	}
	switch f.format {
	case FormatRaw, FormatCompact, FormatPretty:
	default:
		return nil, errors.Errorf("unknown output format %q", cfg.Format)
	}
	if f.dedupeField != "" {
		seen, err := lru.New[string, struct{}](cfg.DedupeCacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "creating dedupe cache")
		}
		f.seen = seen
	}
	return f, nil
}

// Apply returns the bytes to publish for record. keep is false when the
// record was a duplicate or had nothing at the Select path.
func (f *Filter) Apply(record []byte) (out []byte, keep bool, err error) {
	if f.validate {
		if err := fastjson.ValidateBytes(record); err != nil {
			return nil, false, errors.Wrapf(ErrInvalidRecord, "%v", err)
		}
	}

	if f.seen != nil {
		if id := gjson.GetBytes(record, f.dedupeField); id.Exists() {
			if found, _ := f.seen.ContainsOrAdd(id.Raw, struct{}{}); found {
				return nil, false, nil
			}
		}
	}

	out = record
	if f.selectPath != "" {
		selected := gjson.GetBytes(record, f.selectPath)
		if !selected.Exists() {
			return nil, false, nil
		}
		out = []byte(selected.Raw)
	}

	switch f.format {
	case FormatCompact, FormatPretty:
		var v any
		if err := jsonAPI.Unmarshal(out, &v); err != nil {
			return nil, false, errors.Wrapf(ErrInvalidRecord, "%v", err)
		}
		out, err = jsonAPI.Marshal(v)
		if err != nil {
			return nil, false, errors.Wrap(err, "re-encoding record")
		}
		if f.format == FormatPretty {
			out = bytes.TrimSuffix(pretty.PrettyOptions(out, prettyOptions), []byte("\n"))
		}
	}
	return out, true, nil
}
