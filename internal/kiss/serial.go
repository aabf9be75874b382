package kiss

import (
	"fmt"
	"log"
	"sync"

	"go.bug.st/serial"
)

// SerialTransport is a KISS Transport over a serial port, for TNCs that
// expose KISS on a UART rather than a TCP port. It implements the same
// Transport interface as TCPTransport; L2/L3/L4 never distinguish them.
type SerialTransport struct {
	port serial.Port

	sendMu sync.Mutex
	down   bool
	downMu sync.RWMutex

	inbound chan []byte
	logger  *log.Logger
}

// SerialConfig names the port and baud rate of a serial KISS TNC.
type SerialConfig struct {
	Device   string
	BaudRate int
}

// DialSerial opens a serial KISS TNC.
func DialSerial(cfg SerialConfig) (*SerialTransport, error) {
	mode := &serial.Mode{BaudRate: cfg.BaudRate}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("kiss: open serial %s: %w", cfg.Device, err)
	}

	t := &SerialTransport{
		port:    port,
		inbound: make(chan []byte, 64),
		logger:  log.New(log.Writer(), "[kiss-serial] ", log.LstdFlags),
	}
	go t.readLoop()
	return t, nil
}

func (t *SerialTransport) readLoop() {
	defer close(t.inbound)
	buf := make([]byte, 4096)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case t.inbound <- chunk:
			default:
				t.logger.Printf("inbound channel full, dropping %d bytes", n)
			}
		}
		if err != nil {
			t.markDown()
			return
		}
	}
}

func (t *SerialTransport) markDown() {
	t.downMu.Lock()
	t.down = true
	t.downMu.Unlock()
}

func (t *SerialTransport) isDown() bool {
	t.downMu.RLock()
	defer t.downMu.RUnlock()
	return t.down
}

// Send writes a complete KISS frame to the serial TNC.
func (t *SerialTransport) Send(frame []byte) error {
	if t.isDown() {
		return ErrTransportDown
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	_, err := t.port.Write(frame)
	if err != nil {
		t.markDown()
		return fmt.Errorf("%w: %v", ErrTransportDown, err)
	}
	return nil
}

// Inbound returns the channel of raw byte chunks read from the TNC.
func (t *SerialTransport) Inbound() <-chan []byte {
	return t.inbound
}

// Close closes the serial port.
func (t *SerialTransport) Close() error {
	t.markDown()
	return t.port.Close()
}
