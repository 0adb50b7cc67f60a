package field

// Config is the decoded form of one static field. Absent keys stay nil.
type Config struct {
	Name  *string `yaml:"name" json:"name"`
	Value *string `yaml:"value" json:"value"`
}

// Build creates the StaticField described by c.
func (c Config) Build() *StaticField {
	return New(c.Name, c.Value)
}

// List is an ordered set of static fields.
type List []*StaticField

// BuildAll builds one field per config entry, in order.
func BuildAll(cfgs []Config) List {
	out := make(List, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, c.Build())
	}
	return out
}

// Strings returns the textual form of every field, for configuration dumps.
func (l List) Strings() []string {
	out := make([]string, len(l))
	for i, f := range l {
		out[i] = f.String()
	}
	return out
}

// NeedsLookup reports whether any field in the list needs substitution.
func (l List) NeedsLookup() bool {
	for _, f := range l {
		if f.NeedsLookup() {
			return true
		}
	}
	return false
}
