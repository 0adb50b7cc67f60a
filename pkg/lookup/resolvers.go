package lookup

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"fieldgate/pkg/model"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Resolver prefixes.
const (
	EnvPrefix   = "env"
	SysPrefix   = "sys"
	EventPrefix = "event"
	DatePrefix  = "date"
	UUIDPrefix  = "uuid"
	RedisPrefix = "redis"
)

// EnvResolver resolves keys from the process environment.
//
//	${env:REGION}
//	${REGION}
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

func (EnvResolver) Name() string { return EnvPrefix }

func (EnvResolver) Lookup(_ context.Context, _ *model.Event, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	v, ok := os.LookupEnv(key)
	return v, ok, nil
}

// SysResolver resolves host properties (hostname, pid, os, arch, goversion).
// Any other key is looked up in the environment.
type SysResolver struct {
	hostname string
	pid      string
}

func NewSysResolver() *SysResolver {
	host, err := os.Hostname()
	if err != nil {
		host = ""
	}
	return &SysResolver{
		hostname: host,
		pid:      strconv.Itoa(os.Getpid()),
	}
}

func (*SysResolver) Name() string { return SysPrefix }

func (s *SysResolver) Lookup(_ context.Context, _ *model.Event, key string) (string, bool, error) {
	switch strings.ToLower(key) {
	case "":
		return "", false, nil
	case "hostname", "host.name":
		return s.hostname, s.hostname != "", nil
	case "pid", "process.pid":
		return s.pid, true, nil
	case "os", "os.name":
		return runtime.GOOS, true, nil
	case "arch", "os.arch":
		return runtime.GOARCH, true, nil
	case "goversion":
		return runtime.Version(), true, nil
	}
	v, ok := os.LookupEnv(key)
	return v, ok, nil
}

// EventResolver reads a value from the record being emitted. Keys are
// /-separated paths, as in the attribute filter. A key without a slash that
// is not a top-level member is searched in the usual OTel locations.
//
//	${event:resource/attributes/service.name}
//	${event:service.name}
type EventResolver struct{}

func NewEventResolver() *EventResolver {
	return &EventResolver{}
}

func (EventResolver) Name() string { return EventPrefix }

func (EventResolver) Lookup(_ context.Context, ev *model.Event, key string) (string, bool, error) {
	if ev == nil || key == "" || !gjson.ValidBytes(ev.Raw) {
		return "", false, nil
	}
	res := gjson.GetBytes(ev.Raw, model.GjsonPath(key))
	if !res.Exists() && !strings.Contains(key, "/") {
		res = model.FindAttribute(ev.Raw, model.AttributePaths(key))
	}
	if !res.Exists() {
		return "", false, nil
	}
	return res.String(), true, nil
}

// DateResolver formats the event timestamp. The key is a Go time layout or
// one of rfc3339, rfc3339nano, unix, unixmilli. An empty key means rfc3339.
//
//	${date}
//	${date:2006-01-02}
type DateResolver struct {
	now func() time.Time
}

func NewDateResolver() *DateResolver {
	return &DateResolver{now: time.Now}
}

func (*DateResolver) Name() string { return DatePrefix }

func (d *DateResolver) Lookup(_ context.Context, ev *model.Event, key string) (string, bool, error) {
	ts := d.now()
	if ev != nil && !ev.Timestamp.IsZero() {
		ts = ev.Timestamp
	}
	switch strings.ToLower(key) {
	case "", "rfc3339":
		return ts.Format(time.RFC3339), true, nil
	case "rfc3339nano":
		return ts.Format(time.RFC3339Nano), true, nil
	case "unix":
		return strconv.FormatInt(ts.Unix(), 10), true, nil
	case "unixmilli":
		return strconv.FormatInt(ts.UnixMilli(), 10), true, nil
	}
	return ts.Format(key), true, nil
}

// UUIDResolver produces identifiers. ${uuid} is stable for one event;
// ${uuid:random} is fresh on every reference.
type UUIDResolver struct{}

func NewUUIDResolver() *UUIDResolver {
	return &UUIDResolver{}
}

func (UUIDResolver) Name() string { return UUIDPrefix }

const uuidMetadataKey = "lookup.uuid"

func (UUIDResolver) Lookup(_ context.Context, ev *model.Event, key string) (string, bool, error) {
	switch strings.ToLower(key) {
	case "", "event":
		if v, ok := ev.Get(uuidMetadataKey); ok {
			return v, true, nil
		}
		id := uuid.NewString()
		ev.Set(uuidMetadataKey, id)
		return id, true, nil
	case "random":
		return uuid.NewString(), true, nil
	}
	return "", false, nil
}
