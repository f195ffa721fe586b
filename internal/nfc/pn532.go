package nfc

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddr is the PN532 I2C address.
const DefaultAddr = 0x24

const (
	hostToPN532 = 0xD4
	pn532ToHost = 0xD5

	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdInListPassiveTarget = 0x4A

	statusReady = 0x01

	// The largest response we parse (InListPassiveTarget with a 10 byte UID)
	// fits comfortably in here.
	maxFrame = 64

	readyPoll   = 5 * time.Millisecond
	ackTimeout  = 100 * time.Millisecond
	cmdTimeout  = time.Second
	maxUIDBytes = 10
)

var ackFrame = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}

// errTimeout means the PN532 did not raise its ready bit in time.
var errTimeout = errors.New("pn532: timeout")

// Conn is the half-duplex transport to a PN532: i2c.Dev satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// PN532 is a Reader talking to an NXP PN532 over I2C.
type PN532 struct {
	mu     sync.Mutex
	conn   Conn
	closer func() error

	// Firmware holds IC, version and revision from GetFirmwareVersion.
	Firmware [3]byte

	sleep func(time.Duration)
	now   func() time.Time
}

// OpenPN532 opens an I2C bus by name ("" picks the first bus) and
// initialises the reader. The bus is released if the reader does not answer.
func OpenPN532(bus string, addr uint16) (*PN532, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", bus, err)
	}
	p := NewPN532(&i2c.Dev{Bus: b, Addr: addr})
	p.closer = b.Close
	if err := p.Init(); err != nil {
		b.Close()
		return nil, err
	}
	return p, nil
}

// NewPN532 wraps a transport without talking to it; call Init next.
func NewPN532(conn Conn) *PN532 {
	return &PN532{conn: conn, sleep: time.Sleep, now: time.Now}
}

// Init checks the firmware version and puts the SAM in normal mode.
func (p *PN532) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	resp, err := p.call(cmdGetFirmwareVersion, nil, cmdTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoReader, err)
	}
	if len(resp) < 4 {
		return fmt.Errorf("%w: short firmware response % x", ErrNoReader, resp)
	}
	copy(p.Firmware[:], resp[1:4])

	// Normal mode, 50ms*20 virtual card timeout, use IRQ pin.
	if _, err := p.call(cmdSAMConfiguration, []byte{0x01, 0x14, 0x01}, cmdTimeout); err != nil {
		return fmt.Errorf("pn532: SAM configuration: %w", err)
	}
	return nil
}

// Poll lists one ISO14443A target at 106 kbps.
func (p *PN532) Poll(timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	resp, err := p.call(cmdInListPassiveTarget, []byte{0x01, 0x00}, timeout)
	if errors.Is(err, errTimeout) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseTarget(resp)
}

// Close releases the bus. Closing twice is not an error.
func (p *PN532) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closer == nil {
		return nil
	}
	err := p.closer()
	p.closer = nil
	return err
}

// parseTarget extracts the UID from an InListPassiveTarget response:
// NbTg, Tg, SENS_RES(2), SEL_RES, NFCIDLength, NFCID...
func parseTarget(resp []byte) ([]byte, error) {
	if len(resp) < 1 || resp[0] == 0 {
		return nil, nil
	}
	if resp[0] != 1 {
		return nil, fmt.Errorf("pn532: %d targets, want 1", resp[0])
	}
	if len(resp) < 6 {
		return nil, fmt.Errorf("pn532: short target response % x", resp)
	}
	n := int(resp[5])
	if n == 0 || n > maxUIDBytes || len(resp) < 6+n {
		return nil, fmt.Errorf("pn532: bad UID length %d", n)
	}
	uid := make([]byte, n)
	copy(uid, resp[6:6+n])
	return uid, nil
}

// call sends a command, waits for the ACK and returns the response data
// without the TFI and response code.
func (p *PN532) call(cmd byte, params []byte, timeout time.Duration) ([]byte, error) {
	if err := p.conn.Tx(buildFrame(append([]byte{hostToPN532, cmd}, params...)), nil); err != nil {
		return nil, fmt.Errorf("pn532: write command %#02x: %w", cmd, err)
	}
	if err := p.waitReady(ackTimeout); err != nil {
		return nil, err
	}
	ack := make([]byte, 1+len(ackFrame))
	if err := p.conn.Tx(nil, ack); err != nil {
		return nil, fmt.Errorf("pn532: read ack: %w", err)
	}
	if !bytes.Equal(ack[1:], ackFrame) {
		return nil, fmt.Errorf("pn532: bad ack % x", ack[1:])
	}

	if err := p.waitReady(timeout); err != nil {
		return nil, err
	}
	buf := make([]byte, 1+maxFrame)
	if err := p.conn.Tx(nil, buf); err != nil {
		return nil, fmt.Errorf("pn532: read response: %w", err)
	}
	data, err := parseFrame(buf[1:])
	if err != nil {
		return nil, err
	}
	if len(data) < 2 || data[0] != pn532ToHost || data[1] != cmd+1 {
		return nil, fmt.Errorf("pn532: unexpected response % x to %#02x", data, cmd)
	}
	return data[2:], nil
}

// waitReady polls the I2C status byte until bit 0 is set. A bus error ends
// the wait at once; only a reader that stays busy times out.
func (p *PN532) waitReady(timeout time.Duration) error {
	deadline := p.now().Add(timeout)
	status := make([]byte, 1)
	for {
		if err := p.conn.Tx(nil, status); err != nil {
			return fmt.Errorf("pn532: read status: %w", err)
		}
		if status[0]&statusReady != 0 {
			return nil
		}
		if !p.now().Before(deadline) {
			return errTimeout
		}
		p.sleep(readyPoll)
	}
}

// buildFrame wraps TFI+data in a normal information frame.
func buildFrame(data []byte) []byte {
	n := byte(len(data))
	frame := []byte{0x00, 0x00, 0xFF, n, ^n + 1}
	frame = append(frame, data...)
	var sum byte
	for _, b := range data {
		sum += b
	}
	return append(frame, ^sum+1, 0x00)
}

// parseFrame validates a normal information frame and returns TFI+data.
func parseFrame(b []byte) ([]byte, error) {
	i := bytes.Index(b, []byte{0x00, 0xFF})
	if i < 0 || len(b) < i+4 {
		return nil, fmt.Errorf("pn532: no start code in % x", b)
	}
	n := int(b[i+2])
	if byte(n)+b[i+3] != 0 {
		return nil, fmt.Errorf("pn532: bad length checksum")
	}
	start := i + 4
	if len(b) < start+n+1 {
		return nil, fmt.Errorf("pn532: truncated frame")
	}
	data := b[start : start+n]
	sum := b[start+n]
	for _, v := range data {
		sum += v
	}
	if sum != 0 {
		return nil, fmt.Errorf("pn532: bad data checksum")
	}
	return data, nil
}
