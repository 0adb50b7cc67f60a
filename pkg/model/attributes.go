package model

import (
	"strings"

	"github.com/tidwall/gjson"
)

// wellKnownAttributes are OTel attributes that may also appear as nested
// objects, with extra locations searched before the common scopes.
var wellKnownAttributes = map[string][]string{
	"service.name":           {`resource.service\.name`},
	"service.namespace":      nil,
	"service.version":        nil,
	"deployment.environment": nil,
	"http.status_code":       nil,
	"http.method":            nil,
	"http.url":               nil,
	"http.target":            nil,
	"log.level":              {"severity", "severityText", "level"},
}

// attributeScopes are the objects an attribute is looked for in, in order.
// The empty scope is the top level of the record.
var attributeScopes = []string{
	"",
	"attributes",
	"resource.attributes",
	"resourceAttributes",
	"body",
}

// AttributePaths returns the gjson paths searched for attr, in order.
func AttributePaths(attr string) []string {
	if attr == "" {
		return nil
	}
	flat := strings.ReplaceAll(attr, ".", `\.`)

	var paths []string
	if extra, ok := wellKnownAttributes[attr]; ok {
		paths = append(paths, attr)
		paths = append(paths, extra...)
	}
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
	}
	for _, scope := range attributeScopes {
		p := flat
		if scope != "" {
			p = scope + "." + flat
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths
}

// FindAttribute returns the first match of paths in raw.
func FindAttribute(raw []byte, paths []string) gjson.Result {
	for _, p := range paths {
		if res := gjson.GetBytes(raw, p); res.Exists() {
			return res
		}
	}
	return gjson.Result{}
}
