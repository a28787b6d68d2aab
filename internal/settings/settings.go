// Package settings holds the headless settings record and the small
// key/value contract it is persisted through.
//
// The record is four independent flags stored as one JSON document under
// OptionName. Readers get a fresh value per call; nothing here caches.
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// OptionName is the well-known key of the record in the option store.
const OptionName = "headless_setup_options"

// OptionGroup identifies the settings form to the save endpoint.
const OptionGroup = "headless_setup_settings"

var (
	// ErrNotFound is returned by a Store when the option was never written.
	ErrNotFound = errors.New("settings: option not found")

	// ErrCorrupt wraps decode failures of a stored record.
	ErrCorrupt = errors.New("settings: stored record is corrupt")
)

// Record is the settings record consulted by the gate on every request.
type Record struct {
	HeadlessMode     bool `json:"headless_mode"`
	DisableLegacyRPC bool `json:"disable_legacy_rpc"`
	ProtectDataAPI   bool `json:"protect_data_api"`
	ProtectQueryAPI  bool `json:"protect_query_api"`
}

// Defaults is the record written on first activation.
func Defaults() Record {
	return Record{
		HeadlessMode:     true,
		DisableLegacyRPC: true,
		ProtectDataAPI:   true,
		ProtectQueryAPI:  true,
	}
}

// Field describes one flag for forms and editors.
type Field struct {
	Key   string
	Label string
	Get   func(Record) bool
	Set   func(*Record, bool)
}

// Fields lists the flags in display order.
var Fields = []Field{
	{
		Key:   "headless_mode",
		Label: "Enable Headless Mode",
		Get:   func(r Record) bool { return r.HeadlessMode },
		Set:   func(r *Record, v bool) { r.HeadlessMode = v },
	},
	{
		Key:   "disable_legacy_rpc",
		Label: "Disable XML-RPC",
		Get:   func(r Record) bool { return r.DisableLegacyRPC },
		Set:   func(r *Record, v bool) { r.DisableLegacyRPC = v },
	},
	{
		Key:   "protect_data_api",
		Label: "Require Auth for REST API",
		Get:   func(r Record) bool { return r.ProtectDataAPI },
		Set:   func(r *Record, v bool) { r.ProtectDataAPI = v },
	},
	{
		Key:   "protect_query_api",
		Label: "Require Auth for GraphQL",
		Get:   func(r Record) bool { return r.ProtectQueryAPI },
		Set:   func(r *Record, v bool) { r.ProtectQueryAPI = v },
	},
}

// FieldByKey looks a flag up by its stored key.
func FieldByKey(key string) (Field, bool) {
	for _, f := range Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// UnmarshalJSON accepts booleans as well as the 1/0 and "1"/"" values older
// option writers stored. Missing keys stay false.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Record
	for key, val := range raw {
		f, ok := FieldByKey(key)
		if !ok {
			continue
		}
		v, err := parseFlag(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		f.Set(&out, v)
	}
	*r = out
	return nil
}

func parseFlag(val json.RawMessage) (bool, error) {
	val = bytes.TrimSpace(val)
	switch string(val) {
	case "true":
		return true, nil
	case "false", "null":
		return false, nil
	}

	var n float64
	if err := json.Unmarshal(val, &n); err == nil {
		return n != 0, nil
	}

	var s string
	if err := json.Unmarshal(val, &s); err != nil {
		return false, fmt.Errorf("unsupported flag value %s", val)
	}
	return FormValue(s), nil
}

// FormValue interprets a checkbox value. Empty means unchecked.
func FormValue(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s == "on" || s == "yes"
}

// FormName is the input name of a flag in the admin form.
func FormName(key string) string {
	return OptionName + "[" + key + "]"
}

// FromForm builds a record from a submitted settings form. Browsers omit
// unchecked boxes, so an absent field is false.
func FromForm(form url.Values) Record {
	var r Record
	for _, f := range Fields {
		f.Set(&r, FormValue(form.Get(FormName(f.Key))))
	}
	return r
}

// Store is the option store the record lives in.
type Store interface {
	// GetOption returns ErrNotFound when the option is absent.
	GetOption(ctx context.Context, name string) ([]byte, error)
	SetOption(ctx context.Context, name string, value []byte) error
	// AddOption writes value only if name is absent and reports whether it did.
	AddOption(ctx context.Context, name string, value []byte) (bool, error)
}

// Get returns the stored record. found is false when it was never written.
func Get(ctx context.Context, s Store) (rec Record, found bool, err error) {
	raw, err := s.GetOption(ctx, OptionName)
	if errors.Is(err, ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, true, nil
}

// Set writes the record, replacing any previous value.
func Set(ctx context.Context, s Store, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.SetOption(ctx, OptionName, raw)
}

// Activate writes Defaults if no record exists yet. It never overwrites an
// existing record and reports whether it wrote one.
func Activate(ctx context.Context, s Store) (bool, error) {
	raw, err := json.Marshal(Defaults())
	if err != nil {
		return false, err
	}
	return s.AddOption(ctx, OptionName, raw)
}
