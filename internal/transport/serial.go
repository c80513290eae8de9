// Package transport provides the serial link to the inverter.
package transport

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/resident-x/go-aims/internal/config"
	"github.com/resident-x/go-aims/internal/domain"
	"github.com/resident-x/go-aims/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// maxLineLen bounds a response line. A Q1 reply is 47 bytes.
const maxLineLen = 256

// port is the subset of serial.Port used by SerialPort.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// SerialPort implements domain.Transport on a local serial device.
type SerialPort struct {
	name   string
	port   port
	now    func() time.Time
	logger zerolog.Logger
}

// Mode converts the serial configuration into a serial.Mode.
func Mode(cfg *config.Config) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
	}

	switch strings.ToUpper(cfg.Serial.Parity) {
	case "", "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", cfg.Serial.Parity)
	}

	switch cfg.Serial.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", cfg.Serial.StopBits)
	}

	return mode, nil
}

// Open opens the configured serial device.
func Open(cfg *config.Config) (*SerialPort, error) {
	mode, err := Mode(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}

	p, err := serial.Open(cfg.Serial.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrTransport, cfg.Serial.Port, err)
	}

	sp := newSerialPort(cfg.Serial.Port, p)

	// Drop anything the device sent before we asked.
	if err := p.ResetInputBuffer(); err != nil {
		sp.logger.Warn().Err(err).Msg("Failed to reset serial input buffer")
	}

	sp.logger.Debug().
		Int("baud_rate", mode.BaudRate).
		Int("data_bits", mode.DataBits).
		Msg("Opened serial port")
	return sp, nil
}

// Opener returns a domain.TransportOpener for the configured device.
func Opener(cfg *config.Config) domain.TransportOpener {
	return func() (domain.Transport, error) {
		return Open(cfg)
	}
}

func newSerialPort(name string, p port) *SerialPort {
	return &SerialPort{
		name:   name,
		port:   p,
		now:    time.Now,
		logger: log.With().Str("component", "serial").Str("port", name).Logger(),
	}
}

// Write sends p to the device.
func (s *SerialPort) Write(p []byte) error {
	n, err := s.port.Write(p)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrTransport, s.name, err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: write %s: short write %d of %d bytes", domain.ErrTransport, s.name, n, len(p))
	}
	s.logger.Debug().Str("tx", string(p)).Msg("Sent")
	return nil
}

// ReadLine reads until CR or LF and returns the line without its terminator.
// Blank lines are skipped. A line not completed within timeout is an error,
// even if some bytes arrived.
func (s *SerialPort) ReadLine(timeout time.Duration) ([]byte, error) {
	deadline := s.now().Add(timeout)
	var line bytes.Buffer
	buf := make([]byte, 64)

	for {
		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: read %s: timeout after %s (%d bytes received)", domain.ErrTransport, s.name, timeout, line.Len())
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("%w: set read timeout on %s: %w", domain.ErrTransport, s.name, err)
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrTransport, s.name, err)
		}

		for _, c := range buf[:n] {
			if c == '\r' || c == '\n' {
				if line.Len() == 0 {
					continue
				}
				s.logger.Debug().Str("rx", line.String()).Msg("Received")
				return line.Bytes(), nil
			}
			line.WriteByte(c)
		}

		if line.Len() > maxLineLen {
			return nil, fmt.Errorf("%w: read %s: line exceeds %d bytes", domain.ErrTransport, s.name, maxLineLen)
		}
	}
}

// Close releases the port.
func (s *SerialPort) Close() error {
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrTransport, s.name, err)
	}
	return nil
}

// Query sends the Q1 status request and returns the raw response line.
func Query(t domain.Transport, timeout time.Duration) ([]byte, error) {
	if err := t.Write([]byte(protocol.QueryStatus)); err != nil {
		return nil, err
	}
	return t.ReadLine(timeout)
}
