package field

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"fieldgate/pkg/xlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func ptr(s string) *string { return &s }

func captureStatus(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	xlog.Configure(xlog.Config{Output: &buf})
	t.Cleanup(func() { xlog.Configure(xlog.Config{}) })
	return &buf
}

func TestNew_NeedsLookup(t *testing.T) {
	tests := []struct {
		name  string
		value *string
		want  bool
	}{
		{name: "nil value", value: nil, want: false},
		{name: "empty value", value: ptr(""), want: false},
		{name: "plain text", value: ptr("production"), want: false},
		{name: "dollar without brace", value: ptr("$HOME"), want: false},
		{name: "brace without dollar", value: ptr("{sys:ENV}"), want: false},
		{name: "lookup", value: ptr("${sys:ENV}"), want: true},
		{name: "embedded lookup", value: ptr("host-${env:HOSTNAME}-1"), want: true},
		{name: "unterminated marker", value: ptr("abc${"), want: true},
		{name: "escaped marker still flagged", value: ptr("$${literal}"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(ptr("k"), tt.value)
			if got := f.NeedsLookup(); got != tt.want {
				t.Errorf("NeedsLookup() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValue_NeverNull(t *testing.T) {
	f := New(ptr("host"), nil)
	assert.Equal(t, "", f.Value())
	assert.Equal(t, "", f.Value())

	g := New(ptr("host"), ptr("db-1"))
	assert.Equal(t, "db-1", g.Value())

	h := New(ptr("host"), ptr(""))
	assert.Equal(t, "", h.Value())
	assert.False(t, h.NeedsLookup())
}

func TestName_ReturnedUnmodified(t *testing.T) {
	f := New(ptr("  spaced Name "), ptr("v"))
	name, ok := f.Name()
	assert.True(t, ok)
	assert.Equal(t, "  spaced Name ", name)

	empty := New(ptr(""), ptr("v"))
	name, ok = empty.Name()
	assert.True(t, ok)
	assert.Equal(t, "", name)
}

func TestNew_NilNameWarnsButConstructs(t *testing.T) {
	buf := captureStatus(t)

	f := New(nil, ptr("value"))
	require.NotNil(t, f)

	name, ok := f.Name()
	assert.False(t, ok)
	assert.Equal(t, "", name)
	assert.Equal(t, "value", f.Value())

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"), "exactly one diagnostic expected")
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"component":"status"`)
	assert.Contains(t, out, "static field name cannot be null")
}

func TestNew_NamePresentIsSilent(t *testing.T) {
	buf := captureStatus(t)

	_ = New(ptr("env"), nil)
	_ = Of("env", "${sys:ENV}")
	assert.Empty(t, buf.String())
}

func TestString(t *testing.T) {
	captureStatus(t)

	tests := []struct {
		name  string
		field *StaticField
		want  string
	}{
		{name: "nil value", field: New(ptr("host"), nil), want: "host="},
		{name: "lookup value", field: Of("env", "${sys:ENV}"), want: "env=${sys:ENV}"},
		{name: "nil name", field: New(nil, ptr("x")), want: "=x"},
		{name: "both nil", field: New(nil, nil), want: "="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.field.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}

	assert.True(t, Of("env", "${sys:ENV}").NeedsLookup())
}

func TestAccessors_Idempotent(t *testing.T) {
	f := Of("region", "${env:REGION:-eu}")
	for i := 0; i < 3; i++ {
		name, ok := f.Name()
		assert.True(t, ok)
		assert.Equal(t, "region", name)
		assert.Equal(t, "${env:REGION:-eu}", f.Value())
		assert.True(t, f.NeedsLookup())
		assert.Equal(t, "region=${env:REGION:-eu}", f.String())
	}
}

func TestStaticField_ConcurrentReads(t *testing.T) {
	f := Of("dc", "${sys:hostname}")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if f.Value() != "${sys:hostname}" || !f.NeedsLookup() {
					t.Error("unexpected read")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestConfig_YAMLDecode(t *testing.T) {
	buf := captureStatus(t)

	doc := `
- name: host
- name: env
  value: ${sys:ENV}
- value: orphan
- name: empty
  value: ""
`
	var cfgs []Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfgs))

	list := BuildAll(cfgs)
	require.Len(t, list, 4)

	assert.Equal(t, []string{"host=", "env=${sys:ENV}", "=orphan", "empty="}, list.Strings())
	assert.False(t, list[0].NeedsLookup())
	assert.True(t, list[1].NeedsLookup())
	assert.True(t, list.NeedsLookup())

	_, ok := list[2].Name()
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "static field name cannot be null")
}

func TestList_NeedsLookup(t *testing.T) {
	assert.False(t, List{}.NeedsLookup())
	assert.False(t, List{Of("a", "b")}.NeedsLookup())
	assert.True(t, List{Of("a", "b"), Of("c", "${d}")}.NeedsLookup())
}
