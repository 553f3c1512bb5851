// Package artifact inspects the JSON files the collector writes: how old they
// are, the timestamp they carry, and whether a required field holds data.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when an artifact is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// ErrNoTimestamp is returned when the timestamp field is absent.
var ErrNoTimestamp = errors.New("timestamp field missing")

// zonelessLayouts are ISO-8601 forms without an offset. They are read in the
// local zone, as the collector writes them.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Age returns how long ago path was last modified. A missing file returns an
// error satisfying errors.Is(err, fs.ErrNotExist).
func Age(path string, now time.Time) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return now.Sub(info.ModTime()), nil
}

// Read returns the contents of path after checking it is valid JSON.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidJSON)
	}
	return data, nil
}

// Timestamp parses the timestamp at the gjson path field. RFC 3339 values keep
// their offset; zone-less ISO-8601 values are local time; numbers are Unix seconds.
func Timestamp(data []byte, field string) (time.Time, error) {
	v := gjson.GetBytes(data, field)
	if !v.Exists() {
		return time.Time{}, fmt.Errorf("%s: %w", field, ErrNoTimestamp)
	}
	if v.Type == gjson.Number {
		sec := v.Float()
		return time.Unix(0, int64(sec*float64(time.Second))), nil
	}
	return ParseTime(v.String())
}

// ParseTime parses an RFC 3339 or zone-less ISO-8601 timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NonEmpty reports whether the value at the gjson path is present and holds
// data: an array or object with at least one element, a non-empty string, or
// any number or boolean. null never counts.
func NonEmpty(data []byte, path string) bool {
	v := gjson.GetBytes(data, path)
	if !v.Exists() {
		return false
	}
	switch v.Type {
	case gjson.String:
		return v.Str != ""
	case gjson.Number, gjson.True, gjson.False:
		return true
	case gjson.JSON:
		found := false
		v.ForEach(func(_, _ gjson.Result) bool {
			found = true
			return false
		})
		return found
	default:
		return false
	}
}

// Count returns the number of elements of the array or object at path, or 0.
func Count(data []byte, path string) int {
	v := gjson.GetBytes(data, path)
	if v.Type != gjson.JSON {
		return 0
	}
	n := 0
	v.ForEach(func(_, _ gjson.Result) bool {
		n++
		return true
	})
	return n
}

// Freshness is the result of checking one artifact against a maximum age.
type Freshness struct {
	// FileAge is the time since the last modification.
	FileAge time.Duration

	// DataAge is the age of the embedded timestamp; zero when absent.
	DataAge time.Duration

	// HasTimestamp reports whether the artifact carries a timestamp.
	HasTimestamp bool

	// Fresh is true when both ages are within the bound.
	Fresh bool

	// Reason explains a stale or unreadable artifact.
	Reason string
}

// CheckFreshness reports whether the file at path was modified within maxAge
// and, when it carries a timestamp at field, whether that is within maxAge too.
// An artifact without the timestamp field is judged on its mtime alone.
func CheckFreshness(path, field string, maxAge time.Duration, now time.Time) (Freshness, error) {
	var f Freshness

	age, err := Age(path, now)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.Reason = "file does not exist"
			return f, nil
		}
		return f, err
	}
	f.FileAge = age
	if age > maxAge {
		f.Reason = fmt.Sprintf("file is %s old (max %s)", age.Round(time.Second), maxAge)
		return f, nil
	}

	data, err := Read(path)
	if err != nil {
		f.Reason = err.Error()
		return f, nil
	}

	ts, err := Timestamp(data, field)
	switch {
	case errors.Is(err, ErrNoTimestamp):
	case err != nil:
		f.Reason = err.Error()
		return f, nil
	default:
		f.HasTimestamp = true
		f.DataAge = now.Sub(ts)
		if f.DataAge > maxAge {
			f.Reason = fmt.Sprintf("data timestamp is %s old (max %s)", f.DataAge.Round(time.Second), maxAge)
			return f, nil
		}
	}

	f.Fresh = true
	return f, nil
}
