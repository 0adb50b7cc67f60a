package control

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"fieldgate/pkg/engine"
	"fieldgate/pkg/field"
	"fieldgate/pkg/lookup"
	"fieldgate/pkg/output"
	"fieldgate/pkg/xlog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOpts = Options{ConfigKey: "fieldgate_config", Channel: "fieldgate_updates"}

type nopOutput struct{}

func (nopOutput) WriteBatch([][]byte) error { return nil }

// setupWatcher creates a watcher against a miniredis server.
func setupWatcher(t *testing.T) (*miniredis.Miniredis, *Watcher, *engine.Pipeline) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	buf, err := engine.NewRingBuffer(16)
	require.NoError(t, err)
	pipeline := engine.NewPipeline(buf, nil, nopOutput{})

	w := NewWatcher(client, pipeline, lookup.NewDefault(), testOpts)
	w.dial = func(output.MQTTConfig) (output.Output, error) { return nopOutput{}, nil }
	return mr, w, pipeline
}

func setManifest(t *testing.T, mr *miniredis.Miniredis, m Manifest) {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, mr.Set(testOpts.ConfigKey, string(b)))
}

func strPtr(s string) *string { return &s }

func TestWatcher_ReloadBuildsChain(t *testing.T) {
	mr, w, pipeline := setupWatcher(t)

	setManifest(t, mr, Manifest{
		Version: "1",
		Pipelines: []PipelineConfig{{
			Name: "default",
			Processors: []ProcessorRule{
				{ID: "drop_debug", Type: RuleFilter, Params: map[string]string{"value": "DEBUG"}},
				{ID: "mask", Type: RuleRedact, Params: map[string]string{"pattern": "secret", "replacement": "***"}},
				{ID: "no_health", Type: RuleAttributeFilter, Params: map[string]string{"path": "http/target", "value": "/healthz"}},
				{ID: "broken", Type: RuleAttributeFilter, Params: map[string]string{}},
				{ID: "unknown", Type: "explode"},
				{ID: "tags", Type: RuleStaticFields, Fields: []field.Config{
					{Name: strPtr("env"), Value: strPtr("${sys:FIELDGATE_TEST_ENV:-dev}")},
					{Name: strPtr("team"), Value: strPtr("core")},
				}},
			},
			Outputs:   []OutputTarget{{Type: OutputMQTT, MQTT: &output.MQTTConfig{Broker: "tcp://broker:1883", Topic: "logs"}}},
			BatchSize: 20,
		}},
	})

	require.NoError(t, w.Reload(context.Background()))

	chain := pipeline.Chain()
	assert.Equal(t, []string{"drop_debug", "mask", "no_health", "tags"}, chain.Names())
	assert.EqualValues(t, 20, pipeline.BatchSize())

	fields := chain.Fields()
	require.Contains(t, fields, "tags")
	assert.Equal(t, []string{"env=${sys:FIELDGATE_TEST_ENV:-dev}", "team=core"}, fields["tags"].Strings())

	out, drop, err := chain.Process(nil, []byte(`{"msg":"a secret"}`))
	require.NoError(t, err)
	assert.False(t, drop)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, map[string]any{"msg": "a ***", "env": "dev", "team": "core"}, rec)
}

func TestWatcher_NullFieldNameAccepted(t *testing.T) {
	var status bytes.Buffer
	xlog.Configure(xlog.Config{Output: &status})
	t.Cleanup(func() { xlog.Configure(xlog.Config{}) })

	mr, w, pipeline := setupWatcher(t)
	require.NoError(t, mr.Set(testOpts.ConfigKey, `{"pipelines":[{"processors":[
		{"id":"tags","type":"static_fields","fields":[{"value":"orphan"},{"name":null,"value":"x"},{"name":"host"}]}
	]}]}`))

	require.NoError(t, w.Reload(context.Background()))

	fields := pipeline.Chain().Fields()["tags"]
	require.Len(t, fields, 3)
	assert.Equal(t, []string{"=orphan", "=x", "host="}, fields.Strings())
	assert.Equal(t, 2, bytes.Count(status.Bytes(), []byte("static field name cannot be null")))
}

func TestWatcher_ReloadErrors(t *testing.T) {
	mr, w, _ := setupWatcher(t)

	assert.ErrorIs(t, w.Reload(context.Background()), ErrNoManifest)

	require.NoError(t, mr.Set(testOpts.ConfigKey, "{not json"))
	assert.Error(t, w.Reload(context.Background()))

	require.NoError(t, mr.Set(testOpts.ConfigKey, `{"pipelines":[]}`))
	assert.ErrorIs(t, w.Reload(context.Background()), ErrNoManifest)
}

func TestWatcher_BaseFieldsComposeWithManifest(t *testing.T) {
	_, w, pipeline := setupWatcher(t)

	w.SetBaseFields(field.List{field.Of("dc", "fra1")})
	assert.Equal(t, []string{BaseProcessorID}, pipeline.Chain().Names())

	w.Apply(PipelineConfig{Processors: []ProcessorRule{
		{ID: "drop_debug", Type: RuleFilter, Params: map[string]string{"value": "DEBUG"}},
	}})
	assert.Equal(t, []string{"drop_debug", BaseProcessorID}, pipeline.Chain().Names())
	assert.EqualValues(t, defaultBatchSize, pipeline.BatchSize())

	w.SetBaseFields(nil)
	assert.Equal(t, []string{"drop_debug"}, pipeline.Chain().Names())
	require.NoError(t, w.Close())
}

func TestWatcher_RunReloadsOnSignal(t *testing.T) {
	mr, w, pipeline := setupWatcher(t)
	setManifest(t, mr, Manifest{Pipelines: []PipelineConfig{{
		Processors: []ProcessorRule{{ID: "first", Type: RuleFilter, Params: map[string]string{"value": "x"}}},
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		names := pipeline.Chain().Names()
		return len(names) == 1 && names[0] == "first"
	}, 2*time.Second, 20*time.Millisecond)

	setManifest(t, mr, Manifest{Pipelines: []PipelineConfig{{
		Processors: []ProcessorRule{{ID: "second", Type: RuleFilter, Params: map[string]string{"value": "y"}}},
	}}})
	require.Eventually(t, func() bool {
		mr.Publish(testOpts.Channel, "reload")
		names := pipeline.Chain().Names()
		return len(names) == 1 && names[0] == "second"
	}, 2*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_NoClient(t *testing.T) {
	buf, _ := engine.NewRingBuffer(4)
	w := NewWatcher(nil, engine.NewPipeline(buf, nil, nopOutput{}), nil, testOpts)
	assert.NoError(t, w.Run(context.Background()))
}

func TestBuildOutputs_DefaultsToConsole(t *testing.T) {
	outs := BuildOutputs(nil, dialMQTT, xlog.Base())
	require.Len(t, outs, 1)
	assert.IsType(t, &output.ConsoleOutput{}, outs[0])

	outs = BuildOutputs([]OutputTarget{
		{Type: OutputHTTP, URL: "http://collector:4318/logs"},
		{Type: OutputHTTP},
		{Type: OutputMQTT},
		{Type: "carrier-pigeon"},
	}, dialMQTT, xlog.Base())
	require.Len(t, outs, 1)
	assert.IsType(t, &output.HTTPOutput{}, outs[0])
}

// slowMQTT stands in for a broker connection whose publishes take a while.
type slowMQTT struct {
	writing    chan struct{}
	closed     atomic.Bool
	lateWrites atomic.Int32
}

func (o *slowMQTT) WriteBatch([][]byte) error {
	select {
	case o.writing <- struct{}{}:
	default:
	}
	time.Sleep(50 * time.Millisecond)
	if o.closed.Load() {
		o.lateWrites.Add(1)
	}
	return nil
}

func (o *slowMQTT) Close() error {
	o.closed.Store(true)
	return nil
}

func TestWatcher_ApplyClosesPreviousOutputAfterWrite(t *testing.T) {
	buf, err := engine.NewRingBuffer(16)
	require.NoError(t, err)
	pipeline := engine.NewPipeline(buf, nil, nopOutput{})
	w := NewWatcher(nil, pipeline, nil, testOpts)

	first := &slowMQTT{writing: make(chan struct{}, 1)}
	w.dial = func(output.MQTTConfig) (output.Output, error) { return first, nil }

	mqttPipeline := PipelineConfig{
		Outputs:   []OutputTarget{{Type: OutputMQTT, MQTT: &output.MQTTConfig{Broker: "tcp://broker:1883", Topic: "logs"}}},
		BatchSize: 1,
	}
	w.Apply(mqttPipeline)

	ctx, cancel := context.WithCancel(context.Background())
	pipeline.Start(ctx)
	defer func() {
		cancel()
		pipeline.Wait()
	}()

	require.NoError(t, buf.Push([]byte(`{"msg":"x"}`)))
	select {
	case <-first.writing:
	case <-time.After(time.Second):
		t.Fatal("write never started")
	}

	w.dial = func(output.MQTTConfig) (output.Output, error) { return nopOutput{}, nil }
	w.Apply(mqttPipeline)

	assert.True(t, first.closed.Load())
	assert.Zero(t, first.lateWrites.Load())
}
