package xlog

// Canonical field name constants for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldProcessor = "processor"
	FieldField     = "field"
	FieldAddr      = "addr"
	FieldPath      = "path"
	FieldKey       = "key"
	FieldChannel   = "channel"
	FieldCount     = "count"
)

// Component names.
const (
	ComponentStatus   = "status"
	ComponentPipeline = "pipeline"
	ComponentControl  = "control"
	ComponentIngest   = "ingest"
	ComponentOutput   = "output"
	ComponentConfig   = "config"
	ComponentAdmin    = "admin"
)
