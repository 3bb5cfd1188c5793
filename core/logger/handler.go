package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders one flat line per record: ordered keys first,
// the rest sorted. Groups become dotted key prefixes.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	rec := record{}
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format("2006-01-02T15:04:05.000Z07:00")
	rec["level"] = normalizeLevel(r.Level.String())
	if h.cfg.format == formatJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		rec.add(h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.add(h.prefix, a)
		return true
	})
	rec.fromContext(ctx)
	rec.finish(r.Message, h.cfg.format == formatJSON)

	var line []byte
	if h.cfg.format == formatJSON {
		var err error
		if line, err = rec.json(h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = rec.kv(h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// record is the flattened set of fields of one log line.
type record map[string]any

func (rec record) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			rec.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	switch v.Kind() {
	case slog.KindString:
		rec[key] = strings.TrimSpace(v.String())
	case slog.KindDuration:
		rec[durationKey(key)] = RoundMS(v.Duration()).Milliseconds()
	case slog.KindTime:
		rec[key] = v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			rec[key] = int64(u)
		} else {
			rec[key] = u
		}
	case slog.KindAny:
		if x := v.Any(); x != nil {
			rec[key] = fmt.Sprint(x)
		}
	default:
		rec[key] = v.Any()
	}
}

// durationKey makes the millisecond unit explicit in the key.
func durationKey(key string) string {
	if key == "duration" {
		return "duration_ms"
	}
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// fromContext fills correlation keys the record did not set itself.
func (rec record) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	for key, val := range map[string]any{
		"rid":        RIDFrom(ctx),
		"user_id":    UserIDFrom(ctx),
		"update_id":  int64(UpdateIDFrom(ctx)),
		"chat_id":    ChatIDFrom(ctx),
		"handler":    HandlerFrom(ctx),
		"payment_id": PaymentIDFrom(ctx),
		"order_id":   OrderIDFrom(ctx),
		"request_id": AccessRequestFrom(ctx),
	} {
		if _, set := rec[key]; set || val == "" || val == int64(0) {
			continue
		}
		rec[key] = val
	}
}

// finish applies defaults, compacts the rid, validates enumerations and drops empty values.
func (rec record) finish(message string, keepFullRID bool) {
	if rid := rec.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if _, seen := rec["rid_full"]; keepFullRID && !seen {
				rec["rid_full"] = rid
			}
			rec["rid"] = compact
		}
	}
	if rec.str("event") == "" {
		rec["event"] = message
		if message == "" {
			rec["event"] = "unknown"
		}
	}
	if rec.str("component") == "" {
		rec["component"] = "app"
	}
	if s := rec.str("status"); s != "" {
		rec["status"], _ = normalizeStatus(s)
	}
	if o := rec.str("outcome"); o != "" {
		if normalized, ok := normalizeOutcome(o); ok {
			rec["outcome"] = normalized
		} else {
			delete(rec, "outcome")
		}
	}
	for k, v := range rec {
		if v == nil || v == "" {
			delete(rec, k)
		}
	}
}

func (rec record) str(key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// keys returns the configured order first, then the remaining keys sorted.
func (rec record) keys(order []string) []string {
	out := make([]string, 0, len(rec))
	seen := make(map[string]bool, len(rec))
	for _, key := range order {
		if _, ok := rec[key]; ok && !seen[key] {
			out = append(out, key)
			seen[key] = true
		}
	}
	rest := make([]string, 0, len(rec)-len(out))
	for key := range rec {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func (rec record) json(order []string) ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, key := range rec.keys(order) {
		data, err := json.Marshal(rec[key])
		if err != nil {
			return nil, err
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func (rec record) kv(order []string) []byte {
	var b strings.Builder
	for i, key := range rec.keys(order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		s := rec.str(key)
		if strings.IndexFunc(s, needsQuote) >= 0 {
			s = strconv.Quote(s)
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(s)
	}
	return []byte(b.String())
}

func needsQuote(r rune) bool {
	return r <= 32 || r == '=' || r == '"'
}
