package control

import (
	"fieldgate/pkg/field"
	"fieldgate/pkg/output"
)

// Processor rule types understood by the control plane.
const (
	RuleFilter          = "filter"
	RuleRedact          = "redact"
	RuleAttributeFilter = "attribute_filter"
	RuleStaticFields    = "static_fields"
)

// Output target types.
const (
	OutputConsole = "console"
	OutputHTTP    = "http"
	OutputMQTT    = "mqtt"
)

const defaultBatchSize = 100

type Manifest struct {
	Version   string           `json:"version"`
	Pipelines []PipelineConfig `json:"pipelines"`
}

type PipelineConfig struct {
	Name       string          `json:"name"`
	Processors []ProcessorRule `json:"processors"`
	Outputs    []OutputTarget  `json:"outputs"`
	BatchSize  int             `json:"batch_size"`
}

// ProcessorRule describes one processor. Fields is only read for static_fields.
type ProcessorRule struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	Params map[string]string `json:"params"`
	Fields []field.Config    `json:"fields,omitempty"`
}

type OutputTarget struct {
	Type    string             `json:"type"`
	URL     string             `json:"url"`
	Headers map[string]string  `json:"headers"`
	MQTT    *output.MQTTConfig `json:"mqtt,omitempty"`
}
