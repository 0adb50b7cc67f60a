package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fieldgate/pkg/field"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// MockOutput captures writes for verification
type MockOutput struct {
	mu       sync.Mutex
	Captured [][]byte
}

func (m *MockOutput) WriteBatch(entries [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		// Copy because the batch slice is reused
		c := make([]byte, len(e))
		copy(c, e)
		m.Captured = append(m.Captured, c)
	}
	return nil
}

func (m *MockOutput) Snapshot() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.Captured...)
}

func (m *MockOutput) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Captured = nil
}

func TestPipeline_Integration(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	buf, _ := NewRingBuffer(128)
	out := &MockOutput{}

	// Chain: Filter out "bad", Redact "secret"
	chain := NewProcessorChain(
		NewFilterProcessor("filter", []string{"bad"}),
		NewRedactionProcessor("redact", "secret", "xxxx"),
	)

	p := NewPipeline(buf, chain, out)
	p.UpdateBatchSize(10)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.NoError(t, buf.Push([]byte("good log")))
	require.NoError(t, buf.Push([]byte("this has secret value")))
	require.NoError(t, buf.Push([]byte("this is bad log"))) // Should be dropped

	require.Eventually(t, func() bool { return len(out.Snapshot()) == 2 }, time.Second, 10*time.Millisecond)

	got := out.Snapshot()
	if !bytes.Equal(got[0], []byte("good log")) {
		t.Errorf("Log 1 mismatch: %s", got[0])
	}
	if !strings.Contains(string(got[1]), "xxxx") {
		t.Errorf("Log 2 was not redacted: %s", string(got[1]))
	}

	cancel()
	p.Wait()
}

func TestPipeline_AttachesStaticFields(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	buf, _ := NewRingBuffer(64)
	out := &MockOutput{}
	p := NewPipeline(buf, nil, out)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.UpdateChain(NewProcessorChain(
		NewStaticFieldsProcessor("static", field.List{field.Of("env", "prod")}, nil),
	))
	require.NoError(t, buf.Push([]byte(`{"msg":"up"}`)))

	require.Eventually(t, func() bool { return len(out.Snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out.Snapshot()[0], &rec))
	assert.Equal(t, "prod", rec["env"])
	assert.Equal(t, "up", rec["msg"])

	cancel()
	p.Wait()
}

func TestPipeline_FlushesOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	buf, _ := NewRingBuffer(64)
	out := &MockOutput{}
	p := NewPipeline(buf, NewProcessorChain(), out)

	for i := 0; i < 5; i++ {
		require.NoError(t, buf.Push([]byte("pending")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)
	p.Wait()

	assert.Len(t, out.Snapshot(), 5)
	assert.Zero(t, buf.Usage())
}

func TestPipeline_FailOpenBypassesChain(t *testing.T) {
	buf, _ := NewRingBuffer(8)
	p := NewPipeline(buf, NewProcessorChain(NewFilterProcessor("filter", []string{"bad"})), &MockOutput{})

	for i := 0; i < 7; i++ {
		require.NoError(t, buf.Push([]byte("bad")))
	}
	// 7 of 8 is past the 80% threshold
	assert.True(t, p.overloaded())

	buf.Pop()
	buf.Pop()
	assert.False(t, p.overloaded())
}

func TestPipeline_UpdateBatchSize(t *testing.T) {
	buf, _ := NewRingBuffer(8)
	p := NewPipeline(buf, nil, &MockOutput{})

	assert.EqualValues(t, defaultBatchSize, p.BatchSize())
	p.UpdateBatchSize(25)
	assert.EqualValues(t, 25, p.BatchSize())
	p.UpdateBatchSize(0)
	assert.EqualValues(t, defaultBatchSize, p.BatchSize())
}

// slowClosingOutput holds each write for a while and records writes that
// finish after Close.
type slowClosingOutput struct {
	started    chan struct{}
	closed     atomic.Bool
	lateWrites atomic.Int32
}

func (o *slowClosingOutput) WriteBatch([][]byte) error {
	select {
	case o.started <- struct{}{}:
	default:
	}
	time.Sleep(50 * time.Millisecond)
	if o.closed.Load() {
		o.lateWrites.Add(1)
	}
	return nil
}

func (o *slowClosingOutput) Close() error {
	o.closed.Store(true)
	return nil
}

func TestPipeline_UpdateOutputWaitsForInflightWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	buf, _ := NewRingBuffer(16)
	old := &slowClosingOutput{started: make(chan struct{}, 1)}
	p := NewPipeline(buf, nil, old)
	p.UpdateBatchSize(1)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.NoError(t, buf.Push([]byte("in flight")))
	select {
	case <-old.started:
	case <-time.After(time.Second):
		t.Fatal("write never started")
	}

	next := &MockOutput{}
	p.UpdateOutput(next)
	require.NoError(t, old.Close())

	require.NoError(t, buf.Push([]byte("after swap")))
	require.Eventually(t, func() bool { return len(next.Snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	p.Wait()
	assert.Zero(t, old.lateWrites.Load())
	assert.Equal(t, "after swap", string(next.Snapshot()[0]))
}

func TestPipeline_FailOpenSkipsStaticFields(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	buf, _ := NewRingBuffer(8)
	out := &MockOutput{}
	p := NewPipeline(buf, NewProcessorChain(
		NewStaticFieldsProcessor("static", field.List{field.Of("env", "prod")}, nil),
	), out)

	for i := 0; i < 8; i++ {
		require.NoError(t, buf.Push([]byte(`{"n":1}`)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.Eventually(t, func() bool { return len(out.Snapshot()) == 8 }, time.Second, 10*time.Millisecond)
	cancel()
	p.Wait()

	got := out.Snapshot()
	// After the first pop 7 of 8 slots are used, past the threshold, so that
	// record bypasses the chain. From the second pop on the buffer is at or
	// below 6 of 8 and fields are attached again.
	assert.Equal(t, `{"n":1}`, string(got[0]))
	for _, rec := range got[1:] {
		assert.Equal(t, `{"n":1,"env":"prod"}`, string(rec))
	}
}
