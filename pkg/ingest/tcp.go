package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"fieldgate/pkg/engine"
	"fieldgate/pkg/metrics"
	"fieldgate/pkg/xlog"

	"github.com/rs/zerolog"
)

const (
	maxLineBytes    = 1 << 20
	readBufferBytes = 64 * 1024
)

// TCPIngestor listens for TCP connections and pushes one record per line.
type TCPIngestor struct {
	addr    string
	buffer  *engine.RingBuffer
	maxLine int
	logger  zerolog.Logger
	dropLog zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

func NewTCPIngestor(addr string, buffer *engine.RingBuffer) *TCPIngestor {
	logger := xlog.WithComponent(xlog.ComponentIngest).With().Str("transport", "tcp").Logger()
	return &TCPIngestor{
		addr:    addr,
		buffer:  buffer,
		maxLine: maxLineBytes,
		logger:  logger,
		dropLog: logger.Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second}),
		ready:   make(chan struct{}),
	}
}

// Addr returns the bound address once the listener is up, or the configured one.
func (t *TCPIngestor) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// Ready is closed once the listener is bound.
func (t *TCPIngestor) Ready() <-chan struct{} {
	return t.ready
}

// Start listens until ctx is cancelled. Blocking call.
func (t *TCPIngestor) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()
	close(t.ready)

	t.logger.Info().Str(xlog.FieldEvent, "ingest.listening").Str(xlog.FieldAddr, listener.Addr().String()).Msg("TCP ingestor listening")

	var conns sync.WaitGroup
	defer conns.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.logger.Warn().Err(err).Str(xlog.FieldEvent, "ingest.accept_failed").Msg("error accepting connection")
			continue
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			t.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection pushes one record per line. A line longer than maxLine is
// discarded chunk by chunk up to its newline, so it never sits in memory whole.
func (t *TCPIngestor) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	reader := bufio.NewReaderSize(conn, readBufferBytes)
	var line []byte
	oversize := false
	for {
		chunk, err := reader.ReadSlice('\n')
		if !oversize {
			if len(line)+len(chunk) > t.maxLine {
				oversize = true
				line = nil
			} else {
				// chunk aliases the reader's buffer
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if oversize {
			metrics.BufferDroppedTotal.WithLabelValues("tcp", metrics.DropOversize).Inc()
			t.dropLog.Warn().
				Str(xlog.FieldEvent, "ingest.line_oversize").
				Int("max_bytes", t.maxLine).
				Msg("dropping line over the size limit")
			oversize = false
		} else if len(line) > 0 {
			// Push drops on a full buffer (tail drop); logging every drop would be too costly.
			push(t.buffer, "tcp", line)
		}
		line = nil

		if err != nil {
			if err != io.EOF && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				t.logger.Warn().Err(err).Str(xlog.FieldEvent, "ingest.read_failed").Msg("read error")
			}
			return
		}
	}
}

// push records ingest metrics around a buffer push.
func push(buf *engine.RingBuffer, transport string, record []byte) {
	if err := buf.Push(record); err != nil {
		metrics.BufferDroppedTotal.WithLabelValues(transport, metrics.DropBufferFull).Inc()
		return
	}
	metrics.IngestedTotal.WithLabelValues(transport).Inc()
}
