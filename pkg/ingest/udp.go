package ingest

import (
	"context"
	"errors"
	"net"
	"sync"

	"fieldgate/pkg/engine"
	"fieldgate/pkg/xlog"

	"github.com/rs/zerolog"
)

// UDPIngestor listens for UDP packets; each datagram is one record.
type UDPIngestor struct {
	addr   string
	buffer *engine.RingBuffer
	logger zerolog.Logger

	mu    sync.Mutex
	conn  net.PacketConn
	ready chan struct{}
}

func NewUDPIngestor(addr string, buffer *engine.RingBuffer) *UDPIngestor {
	return &UDPIngestor{
		addr:   addr,
		buffer: buffer,
		logger: xlog.WithComponent(xlog.ComponentIngest).With().Str("transport", "udp").Logger(),
		ready:  make(chan struct{}),
	}
}

// Addr returns the bound address once the socket is up, or the configured one.
func (u *UDPIngestor) Addr() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		return u.conn.LocalAddr().String()
	}
	return u.addr
}

// Ready is closed once the socket is bound.
func (u *UDPIngestor) Ready() <-chan struct{} {
	return u.ready
}

// Start reads datagrams until ctx is cancelled. Blocking call.
func (u *UDPIngestor) Start(ctx context.Context) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", u.addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	close(u.ready)

	u.logger.Info().Str(xlog.FieldEvent, "ingest.listening").Str(xlog.FieldAddr, conn.LocalAddr().String()).Msg("UDP ingestor listening")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// Max UDP payload; the read buffer is reused, so each packet is copied out.
	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			u.logger.Warn().Err(err).Str(xlog.FieldEvent, "ingest.read_failed").Msg("UDP read error")
			continue
		}
		if n == 0 {
			continue
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		push(u.buffer, "udp", packet)
	}
}
