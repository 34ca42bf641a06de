package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// field renders one well-known attribute. name replaces the key when set.
type field struct {
	name   string
	render func(v slog.Value) (text, color string)
}

// prettyFields are the keys the session, gateway, channel and ops loggers
// emit. Anything else is printed as key=value.
var prettyFields = map[string]field{
	"method":       {render: methodStyle},
	"path":         {render: func(v slog.Value) (string, string) { return v.String(), ansiCyan }},
	"status":       {render: statusStyle},
	"state":        {render: func(v slog.Value) (string, string) { return stateStyle(v.String()) }},
	"status_class": {name: "class", render: classStyle},
	"duration_ms":  {name: "duration", render: millisStyle},
	"delay_ms":     {name: "delay", render: millisStyle},
	"attempt":      {render: attemptStyle},
	"result":       {render: outcomeStyle},
	"outcome":      {render: outcomeStyle},
	"reason":       {render: outcomeStyle},
}

// prettyHandler writes one human-oriented line per record:
//
//	ts=15:04:05.000 lvl=[INFO] msg=channel.open attempt=0 state=open
type prettyHandler struct {
	w     io.Writer
	level slog.Leveler
	color bool
	mu    *sync.Mutex

	prefix string
	attrs  []byte
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, level: slog.LevelInfo, color: color, mu: &sync.Mutex{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, "ts="...)
	buf = append(buf, h.paint(ts.Format("15:04:05.000"), ansiDim)...)
	buf = append(buf, " lvl="...)
	buf = append(buf, h.levelTag(r.Level)...)
	buf = append(buf, " msg="...)
	buf = append(buf, h.paint(r.Message, ansiBright)...)
	buf = append(buf, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append([]byte(nil), h.attrs...)
	for _, a := range attrs {
		cp.attrs = h.appendAttr(cp.attrs, h.prefix, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func (h *prettyHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if key == "" {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, prefix+key+".", ga)
		}
		return buf
	}

	text, color := plainValue(a.Value), ""
	if f, ok := prettyFields[key]; ok && prefix == "" {
		if f.name != "" {
			key = f.name
		}
		text, color = f.render(a.Value)
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, key...)
	buf = append(buf, '=')
	return append(buf, h.paint(quoteIfNeeded(text), color)...)
}

func (h *prettyHandler) levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint("[ERROR]", ansiRed)
	case level >= slog.LevelWarn:
		return h.paint("[WARN]", ansiYellow)
	case level < slog.LevelInfo:
		return h.paint("[DEBUG]", ansiMagenta)
	default:
		return h.paint("[INFO]", ansiBlue)
	}
}

func (h *prettyHandler) paint(s, code string) string {
	if !h.color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func methodStyle(v slog.Value) (string, string) {
	m := strings.ToUpper(v.String())
	switch m {
	case "GET", "HEAD":
		return m, ansiGreen
	case "POST":
		return m, ansiBlue
	case "PUT", "PATCH":
		return m, ansiYellow
	case "DELETE":
		return m, ansiRed
	default:
		return m, ansiMagenta
	}
}

// statusStyle takes either an HTTP code or a channel status name.
func statusStyle(v slog.Value) (string, string) {
	n, ok := intValue(v)
	if !ok {
		return stateStyle(v.String())
	}
	s := strconv.FormatInt(n, 10)
	switch {
	case n >= 500:
		return s, ansiRed
	case n >= 400:
		return s, ansiYellow
	case n >= 300:
		return s, ansiCyan
	default:
		return s, ansiGreen
	}
}

func stateStyle(state string) (string, string) {
	state = strings.ToLower(state)
	switch state {
	case "open", "authenticated", "ok":
		return state, ansiGreen
	case "connecting", "waiting":
		return state, ansiYellow
	case "idle", "anonymous":
		return state, ansiDim
	default:
		return state, ""
	}
}

func classStyle(v slog.Value) (string, string) {
	class := v.String()
	switch class {
	case "5xx":
		return class, ansiRed
	case "4xx":
		return class, ansiYellow
	case "3xx":
		return class, ansiCyan
	case "unknown":
		return class, ansiMagenta
	default:
		return class, ansiGreen
	}
}

func millisStyle(v slog.Value) (string, string) {
	ms, ok := intValue(v)
	if !ok {
		return plainValue(v), ""
	}
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 5000:
		return s, ansiRed
	case ms >= 1000:
		return s, ansiYellow
	default:
		return s, ansiDim
	}
}

func attemptStyle(v slog.Value) (string, string) {
	n, ok := intValue(v)
	switch {
	case !ok:
		return plainValue(v), ""
	case n >= 8:
		return strconv.FormatInt(n, 10), ansiRed
	case n > 0:
		return strconv.FormatInt(n, 10), ansiYellow
	default:
		return strconv.FormatInt(n, 10), ""
	}
}

func outcomeStyle(v slog.Value) (string, string) {
	result := strings.ToLower(v.String())
	switch result {
	case "ok", "success", "redirect":
		return result, ansiGreen
	case "client_error", "rejected", "unauthorized", "expired", "discarded", "abandoned":
		return result, ansiYellow
	case "server_error", "error", "malformed", "transport_error", "channel_retries", "refresh_failed":
		return result, ansiRed
	default:
		return result, ""
	}
}

func intValue(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= 1<<63-1 {
			return int64(u), true
		}
	}
	return 0, false
}
