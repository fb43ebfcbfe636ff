package trace

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Format is the encoding of written events.
type Format uint8

const (
	// FormatAuto picks NDJSON for .json and .ndjson paths and text otherwise.
	FormatAuto Format = iota
	FormatText
	FormatNDJSON
)

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson)", s)
}

func (f Format) resolve(path string) Format {
	if f != FormatAuto {
		return f
	}
	if strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".ndjson") {
		return FormatNDJSON
	}
	return FormatText
}

// FormatEvent renders ev as one line.
func FormatEvent(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return formatNDJSON(ev)
	}
	return formatText(ev)
}

type jsonEvent struct {
	Time   string            `json:"time"`
	Seq    uint64            `json:"seq"`
	Kind   string            `json:"kind"`
	Scope  string            `json:"scope"`
	Span   uint64            `json:"span,omitempty"`
	Parent uint64            `json:"parent,omitempty"`
	Name   string            `json:"name"`
	Detail string            `json:"detail,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

func formatNDJSON(ev *Event) []byte {
	data, err := json.Marshal(jsonEvent{
		Time:   ev.Time.Format("2006-01-02T15:04:05.000000Z07:00"),
		Seq:    ev.Seq,
		Kind:   ev.Kind.String(),
		Scope:  ev.Scope.String(),
		Span:   ev.SpanID,
		Parent: ev.ParentID,
		Name:   ev.Name,
		Detail: ev.Detail,
		Extra:  ev.Extra,
	})
	if err != nil {
		return fmt.Appendf(nil, "{\"kind\":\"error\",\"detail\":%q}\n", err.Error())
	}
	return append(data, '\n')
}

var kindMarks = map[Kind]string{
	KindSpanBegin: "> ",
	KindSpanEnd:   "< ",
	KindPoint:     "* ",
	KindHeartbeat: "~ ",
}

// formatText renders "15:04:05.000000 <indent><mark>name (detail) {k=v}",
// indenting by scope depth.
func formatText(ev *Event) []byte {
	var sb strings.Builder
	sb.WriteString(ev.Time.Format("15:04:05.000000"))
	sb.WriteByte(' ')
	if ev.Scope > ScopeBuild {
		sb.WriteString(strings.Repeat("  ", int(ev.Scope-ScopeBuild)))
	}
	sb.WriteString(kindMarks[ev.Kind])
	sb.WriteString(ev.Name)
	if ev.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", ev.Detail)
	}
	if len(ev.Extra) > 0 {
		keys := make([]string, 0, len(ev.Extra))
		for k := range ev.Extra {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + ev.Extra[k]
		}
		fmt.Fprintf(&sb, " {%s}", strings.Join(pairs, ", "))
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}
