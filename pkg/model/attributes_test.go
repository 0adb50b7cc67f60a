package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttributePaths(t *testing.T) {
	assert.Nil(t, AttributePaths(""))
	assert.Equal(t, []string{
		"log.level", "severity", "severityText", "level",
		`log\.level`, `attributes.log\.level`, `resource.attributes.log\.level`,
		`resourceAttributes.log\.level`, `body.log\.level`,
	}, AttributePaths("log.level"))
	assert.Equal(t, []string{
		"trace_id", "attributes.trace_id", "resource.attributes.trace_id",
		"resourceAttributes.trace_id", "body.trace_id",
	}, AttributePaths("trace_id"))
}

func TestFindAttribute(t *testing.T) {
	paths := AttributePaths("service.name")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"flat top level", `{"service.name":"a"}`, "a"},
		{"nested object", `{"service":{"name":"b"}}`, "b"},
		{"resource attributes", `{"resource":{"attributes":{"service.name":"c"}}}`, "c"},
		{"resource shorthand", `{"resource":{"service.name":"d"}}`, "d"},
		{"flattened resource attributes", `{"resourceAttributes":{"service.name":"e"}}`, "e"},
		{"missing", `{"other":"x"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := FindAttribute([]byte(tt.input), paths)
			assert.Equal(t, tt.want != "", res.Exists())
			assert.Equal(t, tt.want, res.String())
		})
	}
}
