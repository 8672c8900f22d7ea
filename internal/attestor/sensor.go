package attestor

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

const sensorRequest = "GET /entropy/32\n"

// TCPSensor fetches 32 bytes from an external entropy device. Any failure
// falls back to crypto/rand so a battle never stalls on the sensor.
type TCPSensor struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

func NewTCPSensor(addr string, timeout time.Duration, logger *slog.Logger) *TCPSensor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPSensor{addr: addr, timeout: timeout, logger: logger.With(slog.String("component", "sensor"))}
}

func (s *TCPSensor) Read(ctx context.Context) []byte {
	buf, err := s.fetch(ctx)
	if err == nil {
		return buf
	}
	s.logger.WarnContext(ctx, "sensor: read failed, using local randomness",
		slog.String("addr", s.addr),
		slog.Any("error", err),
	)
	buf = make([]byte, 32)
	_, _ = rand.Read(buf)
	return buf
}

func (s *TCPSensor) fetch(ctx context.Context) ([]byte, error) {
	if s.addr == "" {
		return nil, fmt.Errorf("no sensor address")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(conn, sensorRequest); err != nil {
		return nil, err
	}
	buf := make([]byte, 32)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
