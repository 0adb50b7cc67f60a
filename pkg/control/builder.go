package control

import (
	"fmt"

	"fieldgate/pkg/engine"
	"fieldgate/pkg/field"
	"fieldgate/pkg/lookup"
	"fieldgate/pkg/output"
	"fieldgate/pkg/xlog"

	"github.com/rs/zerolog"
)

// BuildProcessors turns manifest rules into processors. Invalid rules are
// logged and skipped so one bad rule does not block the rest.
func BuildProcessors(rules []ProcessorRule, ip *lookup.Interpolator, logger zerolog.Logger) []engine.Processor {
	var processors []engine.Processor
	for _, rule := range rules {
		proc, err := buildProcessor(rule, ip)
		if err != nil {
			logger.Warn().Err(err).
				Str(xlog.FieldEvent, "control.rule_skipped").
				Str(xlog.FieldProcessor, rule.ID).
				Msg("skipping processor rule")
			continue
		}
		processors = append(processors, proc)
	}
	return processors
}

func buildProcessor(rule ProcessorRule, ip *lookup.Interpolator) (engine.Processor, error) {
	switch rule.Type {
	case RuleFilter:
		// Params: value (block word)
		val, ok := rule.Params["value"]
		if !ok || val == "" {
			return nil, fmt.Errorf("filter %q: missing value", rule.ID)
		}
		return engine.NewFilterProcessor(rule.ID, []string{val}), nil

	case RuleRedact:
		// Params: pattern, replacement
		pat := rule.Params["pattern"]
		rep := rule.Params["replacement"]
		if pat == "" || rep == "" {
			return nil, fmt.Errorf("redact %q: pattern and replacement are required", rule.ID)
		}
		return engine.NewRedactionProcessor(rule.ID, pat, rep), nil

	case RuleAttributeFilter:
		// Params: attribute OR path, operator, value
		proc, err := engine.NewAttributeFilterProcessor(engine.AttributeFilterConfig{
			Name:      rule.ID,
			Attribute: rule.Params["attribute"],
			Path:      rule.Params["path"],
			Operator:  engine.Operator(rule.Params["operator"]),
			Value:     rule.Params["value"],
		})
		if err != nil {
			return nil, fmt.Errorf("attribute_filter %q: %w", rule.ID, err)
		}
		return proc, nil

	case RuleStaticFields:
		// Nameless fields are accepted; field.New reports them.
		return engine.NewStaticFieldsProcessor(rule.ID, field.BuildAll(rule.Fields), ip), nil
	}
	return nil, fmt.Errorf("unknown processor type %q", rule.Type)
}

// MQTTDialer connects an MQTT output. Swapped in tests.
type MQTTDialer func(output.MQTTConfig) (output.Output, error)

func dialMQTT(cfg output.MQTTConfig) (output.Output, error) {
	return output.NewMQTTOutput(cfg)
}

// BuildOutputs turns targets into outputs, defaulting to the console.
func BuildOutputs(targets []OutputTarget, dial MQTTDialer, logger zerolog.Logger) []output.Output {
	var outputs []output.Output
	for _, t := range targets {
		switch t.Type {
		case OutputConsole:
			outputs = append(outputs, output.NewConsoleOutput())
		case OutputHTTP:
			if t.URL != "" {
				outputs = append(outputs, output.NewHTTPOutput(t.URL, t.Headers))
			}
		case OutputMQTT:
			if t.MQTT == nil {
				logger.Warn().Str(xlog.FieldEvent, "control.output_skipped").Msg("mqtt output without mqtt settings")
				continue
			}
			out, err := dial(*t.MQTT)
			if err != nil {
				logger.Warn().Err(err).Str(xlog.FieldEvent, "control.output_skipped").Msg("failed to connect mqtt output")
				continue
			}
			outputs = append(outputs, out)
		default:
			logger.Warn().Str(xlog.FieldEvent, "control.output_skipped").Str("type", t.Type).Msg("unknown output type")
		}
	}
	if len(outputs) == 0 {
		outputs = append(outputs, output.NewConsoleOutput())
	}
	return outputs
}
