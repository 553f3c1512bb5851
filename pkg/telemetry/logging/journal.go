package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// journalTimeFormat is the timestamp layout of journal lines.
const journalTimeFormat = "2006-01-02 15:04:05"

// defaultJournal receives records that carry no component attribute.
const defaultJournal = "warden"

// Journal writes one human-readable log file per component. Lines look like:
//
//	[2026-03-14 09:30:00] WATCHDOG: dataset stale name=hybrid age=41m0s
//
// Files are opened lazily on the first record for a component and appended to.
type Journal struct {
	dir   string
	level slog.Level

	mu      sync.Mutex
	files   map[string]*os.File
	loggers map[string]zerolog.Logger
}

// NewJournal creates dir if needed and returns a journal writing into it.
func NewJournal(dir string, level slog.Level) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory %q: %w", dir, err)
	}
	return &Journal{
		dir:     dir,
		level:   level,
		files:   make(map[string]*os.File),
		loggers: make(map[string]zerolog.Logger),
	}, nil
}

// Path returns the journal file used for component.
func (j *Journal) Path(component string) string {
	return filepath.Join(j.dir, journalName(component)+".log")
}

// Handler returns a slog.Handler feeding the journal.
func (j *Journal) Handler() slog.Handler {
	return &journalHandler{journal: j}
}

// Close closes every open journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	for name, f := range j.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal %s: %w", name, err))
		}
	}
	j.files = make(map[string]*os.File)
	j.loggers = make(map[string]zerolog.Logger)
	return errors.Join(errs...)
}

func (j *Journal) logger(component string) (zerolog.Logger, error) {
	name := journalName(component)

	j.mu.Lock()
	defer j.mu.Unlock()

	if l, ok := j.loggers[name]; ok {
		return l, nil
	}

	f, err := os.OpenFile(j.Path(component), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to open journal %s: %w", name, err)
	}

	tag := strings.ToUpper(name) + ":"
	cw := zerolog.ConsoleWriter{
		Out:        zerolog.SyncWriter(f),
		NoColor:    true,
		TimeFormat: journalTimeFormat,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
		FormatTimestamp: formatJournalTime,
		FormatLevel: func(i any) string {
			switch fmt.Sprint(i) {
			case zerolog.LevelWarnValue:
				return tag + " WARNING"
			case zerolog.LevelErrorValue:
				return tag + " ERROR"
			case zerolog.LevelFatalValue:
				return tag + " CRITICAL"
			default:
				return tag
			}
		},
	}

	l := zerolog.New(cw)
	j.files[name] = f
	j.loggers[name] = l
	return l, nil
}

func formatJournalTime(i any) string {
	s, ok := i.(string)
	if !ok {
		return "[" + fmt.Sprint(i) + "]"
	}
	t, err := time.Parse(zerolog.TimeFieldFormat, s)
	if err != nil {
		return "[" + s + "]"
	}
	return "[" + t.Local().Format(journalTimeFormat) + "]"
}

func journalName(component string) string {
	if component == "" {
		return defaultJournal
	}
	r := strings.NewReplacer("/", "_", ".", "_", " ", "_")
	return strings.ToLower(r.Replace(component))
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= LevelCritical:
		return zerolog.FatalLevel
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

type journalHandler struct {
	journal   *Journal
	component string
	prefix    string
	attrs     []slog.Attr
}

func (h *journalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.journal.level
}

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	component := h.component
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" && h.prefix == "" {
			component = a.Value.String()
			return true
		}
		attrs = append(attrs, qualify(h.prefix, a))
		return true
	})

	l, err := h.journal.logger(component)
	if err != nil {
		return err
	}

	// WithLevel never exits, even at FatalLevel.
	ev := l.WithLevel(zerologLevel(r.Level))
	ev.Time(zerolog.TimestampFieldName, r.Time)
	for _, a := range attrs {
		addField(ev, a.Key, a.Value)
	}
	ev.Msg(r.Message)
	return nil
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == "component" && h.prefix == "" {
			next.component = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, qualify(h.prefix, a))
	}
	return &next
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func qualify(prefix string, a slog.Attr) slog.Attr {
	if prefix == "" {
		return a
	}
	return slog.Attr{Key: prefix + a.Key, Value: a.Value}
}

func addField(ev *zerolog.Event, key string, v slog.Value) {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		ev.Str(key, v.String())
	case slog.KindInt64:
		ev.Int64(key, v.Int64())
	case slog.KindUint64:
		ev.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		ev.Float64(key, v.Float64())
	case slog.KindBool:
		ev.Bool(key, v.Bool())
	case slog.KindDuration:
		ev.Str(key, v.Duration().String())
	case slog.KindTime:
		ev.Str(key, v.Time().Format(journalTimeFormat))
	case slog.KindGroup:
		for _, a := range v.Group() {
			addField(ev, key+"."+a.Key, a.Value)
		}
	default:
		if err, ok := v.Any().(error); ok {
			ev.Str(key, err.Error())
			return
		}
		ev.Str(key, fmt.Sprint(v.Any()))
	}
}
