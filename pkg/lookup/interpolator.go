package lookup

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"fieldgate/pkg/model"
)

// Resolver resolves the key part of a ${prefix:key} reference.
type Resolver interface {
	// Name is the prefix this resolver answers to.
	Name() string

	// Lookup returns the value for key. found is false when the key is unknown;
	// err is reserved for failures of the backing source.
	Lookup(ctx context.Context, ev *model.Event, key string) (value string, found bool, err error)
}

// Interpolator renders templates against a set of resolvers.
type Interpolator struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
	fallback  string
}

// New creates an Interpolator. References without a prefix go to the env
// resolver unless the bare name matches a registered resolver.
func New(resolvers ...Resolver) *Interpolator {
	ip := &Interpolator{
		resolvers: make(map[string]Resolver, len(resolvers)),
		fallback:  EnvPrefix,
	}
	for _, r := range resolvers {
		ip.resolvers[r.Name()] = r
	}
	return ip
}

// NewDefault creates an Interpolator with env, sys, event, date and uuid
// resolvers registered.
func NewDefault() *Interpolator {
	return New(NewEnvResolver(), NewSysResolver(), NewEventResolver(), NewDateResolver(), NewUUIDResolver())
}

// Register adds or replaces a resolver.
func (ip *Interpolator) Register(r Resolver) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.resolvers[r.Name()] = r
}

// Resolvers returns the registered prefixes, sorted.
func (ip *Interpolator) Resolvers() []string {
	ip.mu.RLock()
	defer ip.mu.RUnlock()
	return slices.Sorted(maps.Keys(ip.resolvers))
}

func (ip *Interpolator) resolver(ref *reference) (Resolver, string) {
	ip.mu.RLock()
	defer ip.mu.RUnlock()
	if ref.prefix != "" {
		return ip.resolvers[ref.prefix], ref.key
	}
	if r, ok := ip.resolvers[ref.key]; ok {
		return r, ""
	}
	return ip.resolvers[ip.fallback], ref.key
}

// Render resolves every reference in t for ev. Unresolved references without
// a default are emitted unchanged.
func (ip *Interpolator) Render(ctx context.Context, ev *model.Event, t *Template) (string, error) {
	var sb strings.Builder
	sb.Grow(len(t.source))

	for _, p := range t.parts {
		if p.ref == nil {
			sb.WriteString(p.literal)
			continue
		}
		r, key := ip.resolver(p.ref)
		if r == nil {
			ip.writeUnresolved(&sb, p.ref)
			continue
		}
		v, found, err := r.Lookup(ctx, ev, key)
		if err != nil {
			return "", fmt.Errorf("lookup %s: %w", p.ref.raw, err)
		}
		if !found {
			ip.writeUnresolved(&sb, p.ref)
			continue
		}
		sb.WriteString(v)
	}
	return sb.String(), nil
}

func (ip *Interpolator) writeUnresolved(sb *strings.Builder, ref *reference) {
	if ref.hasDefault {
		sb.WriteString(ref.def)
		return
	}
	sb.WriteString(ref.raw)
}

// Replace compiles and renders s in one step.
func (ip *Interpolator) Replace(ctx context.Context, ev *model.Event, s string) (string, error) {
	if !strings.Contains(s, openMarker) {
		return s, nil
	}
	return ip.Render(ctx, ev, Compile(s))
}
