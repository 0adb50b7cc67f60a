package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"fieldgate/pkg/field"
	"fieldgate/pkg/lookup"
	"fieldgate/pkg/metrics"
	"fieldgate/pkg/model"
	"fieldgate/pkg/xlog"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// staticEntry is a field with its key and (when constant) value pre-encoded.
type staticEntry struct {
	field *field.StaticField
	key   string
	enc   []byte // `"key":`
	value []byte // quoted constant value, nil when the value needs lookup
	tmpl  *lookup.Template
}

// StaticFieldsProcessor attaches configured static fields to JSON records.
// Values containing ${...} are resolved per record at emission time.
// Members already present in the record are left alone, and non-JSON records
// pass through unchanged (fail-open).
type StaticFieldsProcessor struct {
	name    string
	entries []staticEntry
	ip      *lookup.Interpolator
	now     func() time.Time
	logger  zerolog.Logger
}

// NewStaticFieldsProcessor creates a processor for fields. ip may be nil when
// no field needs lookup; lookups then fall back to the raw value.
func NewStaticFieldsProcessor(name string, fields field.List, ip *lookup.Interpolator) *StaticFieldsProcessor {
	p := &StaticFieldsProcessor{
		name:    name,
		entries: make([]staticEntry, 0, len(fields)),
		ip:      ip,
		now:     time.Now,
		logger: xlog.WithComponent(xlog.ComponentPipeline).
			Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second}).
			With().Str(xlog.FieldProcessor, name).Logger(),
	}
	for _, f := range fields {
		key, _ := f.Name()
		e := staticEntry{
			field: f,
			key:   key,
			enc:   append(quoteJSON(key), ':'),
		}
		if f.NeedsLookup() {
			e.tmpl = lookup.Compile(f.Value())
		}
		// Values like "$${x}" or an unterminated "${" hold no reference
		// and are resolved once here.
		switch {
		case e.tmpl == nil:
			e.value = quoteJSON(f.Value())
		case !e.tmpl.HasReferences():
			e.value = quoteJSON(e.tmpl.Literal())
			e.tmpl = nil
		}
		p.entries = append(p.entries, e)
	}
	return p
}

func (p *StaticFieldsProcessor) Name() string {
	return p.name
}

// Fields returns the configured fields, in order.
func (p *StaticFieldsProcessor) Fields() field.List {
	out := make(field.List, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.field
	}
	return out
}

func (p *StaticFieldsProcessor) Process(ctx *ProcessingContext, entry []byte) ([]byte, bool, error) {
	if len(p.entries) == 0 {
		return entry, false, nil
	}

	body, tail := splitTrailingSpace(entry)
	if !gjson.ValidBytes(body) {
		return entry, false, nil
	}
	obj := gjson.ParseBytes(body)
	if !obj.IsObject() {
		return entry, false, nil
	}

	seen := make(map[string]struct{})
	obj.ForEach(func(key, _ gjson.Result) bool {
		seen[key.String()] = struct{}{}
		return true
	})
	empty := len(seen) == 0

	closing := bytes.LastIndexByte(body, '}')
	out := make([]byte, 0, len(entry)+64*len(p.entries))
	out = append(out, body[:closing]...)

	var ev *model.Event
	attached := 0
	for i := range p.entries {
		e := &p.entries[i]
		if _, dup := seen[e.key]; dup {
			continue
		}
		seen[e.key] = struct{}{}

		value := e.value
		if value == nil {
			if ev == nil {
				ev = model.NewEvent(p.now(), body)
			}
			value = quoteJSON(p.resolve(ctx, ev, e))
		}

		if !empty {
			out = append(out, ',')
		}
		empty = false
		out = append(out, e.enc...)
		out = append(out, value...)
		attached++
	}

	if attached == 0 {
		return entry, false, nil
	}
	metrics.FieldsAttachedTotal.WithLabelValues(p.name).Add(float64(attached))

	out = append(out, body[closing:]...)
	out = append(out, tail...)
	return out, false, nil
}

// resolve renders a lookup value, falling back to the raw text on failure.
func (p *StaticFieldsProcessor) resolve(pctx *ProcessingContext, ev *model.Event, e *staticEntry) string {
	if p.ip == nil {
		return e.field.Value()
	}
	var ctx context.Context = context.Background()
	if pctx != nil && pctx.Context != nil {
		ctx = pctx.Context
	}
	v, err := p.ip.Render(ctx, ev, e.tmpl)
	if err != nil {
		metrics.LookupFailuresTotal.WithLabelValues(p.name).Inc()
		p.logger.Warn().Err(err).
			Str(xlog.FieldEvent, "field.lookup_failed").
			Str(xlog.FieldField, e.field.String()).
			Msg("static field lookup failed, using raw value")
		return e.field.Value()
	}
	return v
}

func splitTrailingSpace(entry []byte) (body, tail []byte) {
	body = bytes.TrimRight(entry, " \t\r\n")
	return body, entry[len(body):]
}

// quoteJSON encodes s as a JSON string literal.
func quoteJSON(s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		// strings always marshal
		return []byte(`""`)
	}
	return b
}
