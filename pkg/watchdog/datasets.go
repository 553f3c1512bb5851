package watchdog

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/tidwall/gjson"

	"agentceli/warden/pkg/artifact"
	"agentceli/warden/pkg/config"
)

// Reason classifies a dataset check result.
type Reason string

const (
	ReasonOK      Reason = "OK"
	ReasonMissing Reason = "MISSING"
	ReasonStale   Reason = "STALE"
	ReasonInvalid Reason = "INVALID"
)

// Descriptor describes one expected collector output.
type Descriptor struct {
	Name          string        `json:"name"`
	Path          string        `json:"path"`
	MaxAge        time.Duration `json:"max_age"`
	RequiredField string        `json:"required_field"`
}

// NewDescriptors converts configured datasets into descriptors.
func NewDescriptors(datasets []config.DatasetConfig) []Descriptor {
	out := make([]Descriptor, 0, len(datasets))
	for _, d := range datasets {
		maxAge := d.MaxAge
		if maxAge <= 0 {
			maxAge = config.DefaultDatasetMaxAge
		}
		out = append(out, Descriptor{
			Name:          d.Name,
			Path:          d.Path,
			MaxAge:        maxAge,
			RequiredField: d.RequiredField,
		})
	}
	return out
}

// Result is the outcome of checking one dataset.
type Result struct {
	Name   string        `json:"name"`
	Valid  bool          `json:"valid"`
	Reason Reason        `json:"reason"`
	Age    time.Duration `json:"age"`
	Detail string        `json:"detail,omitempty"`
}

// CheckDataset reports whether the dataset exists, was modified within its
// MaxAge, parses as a JSON object, and holds a non-empty RequiredField.
// Age is -1 when the file is missing.
func CheckDataset(d Descriptor, now time.Time) Result {
	r := Result{Name: d.Name, Age: -1}

	age, err := artifact.Age(d.Path, now)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.Reason = ReasonMissing
			r.Detail = "file does not exist"
			return r
		}
		r.Reason = ReasonInvalid
		r.Detail = err.Error()
		return r
	}
	r.Age = age

	if age > d.MaxAge {
		r.Reason = ReasonStale
		r.Detail = fmt.Sprintf("%s old (max %s)", age.Round(time.Second), d.MaxAge)
		return r
	}

	data, err := artifact.Read(d.Path)
	if err != nil {
		r.Reason = ReasonInvalid
		r.Detail = err.Error()
		return r
	}
	if !gjson.ParseBytes(data).IsObject() {
		r.Reason = ReasonInvalid
		r.Detail = "not a JSON object"
		return r
	}
	if d.RequiredField != "" && !artifact.NonEmpty(data, d.RequiredField) {
		r.Reason = ReasonInvalid
		r.Detail = fmt.Sprintf("required field %q missing or empty", d.RequiredField)
		return r
	}

	r.Valid = true
	r.Reason = ReasonOK
	return r
}
