package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// timeLayouts are tried in order when a string is decoded into a time.Time.
// The last two cover SQLite CURRENT_TIMESTAMP and strftime defaults.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999",
	"2006-01-02 15:04:05",
}

var timeType = reflect.TypeFor[time.Time]()

// FromMap builds a validated value object from a plain map. Keys matching a
// field's mapstructure tag populate that field, IdentityKey becomes the identity
// and every other key is kept as an additional property. Values are not coerced
// between kinds: a string where a number is expected is a ValidationError.
func FromMap[T any, PT interface {
	*T
	Entity
}](m map[string]any) (PT, error) {
	v := PT(new(T))

	fields := m
	if raw, ok := m[IdentityKey]; ok {
		fields = make(map[string]any, len(m)-1)
		for k, val := range m {
			if k != IdentityKey {
				fields[k] = val
			}
		}

		if raw != nil {
			id, err := identityFromAny(raw)
			if err != nil {
				return nil, err
			}

			if err := AssignIdentity(v, id); err != nil {
				return nil, err
			}
		}
	}

	unused, err := decodeFields(fields, v, false)
	if err != nil {
		return nil, err
	}

	for _, key := range unused {
		v.base().SetExtra(key, fields[key])
	}

	if err := Validate(v); err != nil {
		return nil, err
	}

	return v, nil
}

// DecodeRecord populates target from a storage record, converting the string and
// integer forms drivers return into the field types. It returns the record keys
// that matched no field; the caller decides whether they are additional
// properties or a mapping failure. DecodeRecord does not validate.
func DecodeRecord(rec map[string]any, target Entity) ([]string, error) {
	return decodeFields(rec, target, true)
}

func decodeFields(m map[string]any, target any, fromStorage bool) ([]string, error) {
	hooks := []mapstructure.DecodeHookFunc{timeHook}
	if fromStorage {
		hooks = append(hooks, storageScalarHook)
	}

	var md mapstructure.Metadata

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(hooks...),
		Metadata:   &md,
		Result:     target,
		TagName:    "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("building decoder: %w", err)
	}

	if err := dec.Decode(m); err != nil {
		return nil, NewValidationError("", err.Error())
	}

	return md.Unused, nil
}

func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), nil
			}
		}

		return nil, fmt.Errorf("cannot parse %q as a timestamp", v)
	case time.Time:
		return v.UTC(), nil
	default:
		return data, nil
	}
}

// storageScalarHook converts textual driver values into numeric and boolean fields.
// Some drivers report every column as text depending on the protocol in use.
func storageScalarHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}

	s, _ := data.(string)

	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.ParseInt(s, 10, 64)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.ParseUint(s, 10, 64)
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(s, 64)
	case reflect.Bool:
		return strconv.ParseBool(s)
	default:
		return data, nil
	}
}

// IdentityFromAny converts the identity forms found in maps and driver rows.
func IdentityFromAny(raw any) (int64, error) {
	return identityFromAny(raw)
}

func identityFromAny(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			break
		}

		return int64(v), nil
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v <= math.MaxInt64 {
			return int64(v), nil
		}
	case json.Number:
		if id, err := v.Int64(); err == nil {
			return id, nil
		}
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id, nil
		}
	case []byte:
		if id, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return id, nil
		}
	}

	return 0, NewValidationErrorWithValue(IdentityKey, "must be an integer", raw)
}
