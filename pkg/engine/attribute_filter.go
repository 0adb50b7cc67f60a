package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"fieldgate/pkg/model"

	"github.com/tidwall/gjson"
)

var (
	ErrNoAttribute      = errors.New("either attribute or path must be specified")
	ErrAttributeAndPath = errors.New("cannot specify both attribute and path")
	ErrUnknownOperator  = errors.New("unknown operator")
)

// Operator defines the comparison operation for attribute filtering
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
	OpExists   Operator = "exists"
	OpNotEqual Operator = "not_equals"
)

// AttributeFilterConfig holds configuration for creating an AttributeFilterProcessor
type AttributeFilterConfig struct {
	Name      string
	Attribute string // well-known or custom attribute, searched in the usual OTel locations
	Path      string // explicit /-separated path
	Operator  Operator
	Value     string
}

// AttributeFilterProcessor drops records whose attribute matches.
// Records that are not JSON, or lack the attribute, pass through.
type AttributeFilterProcessor struct {
	name  string
	paths []string
	match func(gjson.Result) bool
}

// NewAttributeFilterProcessor creates a new attribute filter processor.
// Either Attribute or Path must be specified, not both. The operator
// defaults to equals.
func NewAttributeFilterProcessor(cfg AttributeFilterConfig) (*AttributeFilterProcessor, error) {
	switch {
	case cfg.Attribute == "" && cfg.Path == "":
		return nil, ErrNoAttribute
	case cfg.Attribute != "" && cfg.Path != "":
		return nil, ErrAttributeAndPath
	}

	match, err := matcher(cfg.Operator, cfg.Value)
	if err != nil {
		return nil, err
	}

	p := &AttributeFilterProcessor{name: cfg.Name, match: match}
	if cfg.Path != "" {
		p.paths = []string{model.GjsonPath(cfg.Path)}
	} else {
		p.paths = model.AttributePaths(cfg.Attribute)
	}
	return p, nil
}

// matcher compiles op and want into a predicate over the found value.
func matcher(op Operator, want string) (func(gjson.Result) bool, error) {
	switch op {
	case OpEquals, "":
		return func(v gjson.Result) bool { return v.String() == want }, nil
	case OpNotEqual:
		return func(v gjson.Result) bool { return v.String() != want }, nil
	case OpContains:
		return func(v gjson.Result) bool { return strings.Contains(v.String(), want) }, nil
	case OpExists:
		return func(gjson.Result) bool { return true }, nil
	case OpRegex:
		re, err := regexp.Compile(want)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		return func(v gjson.Result) bool { return re.MatchString(v.String()) }, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownOperator, op)
}

func (p *AttributeFilterProcessor) Name() string {
	return p.name
}

// Process returns drop=true when the attribute is present and matches.
func (p *AttributeFilterProcessor) Process(_ *ProcessingContext, entry []byte) ([]byte, bool, error) {
	if !gjson.ValidBytes(entry) {
		return entry, false, nil
	}
	value := model.FindAttribute(entry, p.paths)
	if !value.Exists() {
		return entry, false, nil
	}
	return entry, p.match(value), nil
}
