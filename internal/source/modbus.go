package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// ZoneRegister maps one zone to the Modbus holding-register address that
// carries its temperature, and the one that carries its active setpoint.
// Registers are read as a pair of 16-bit words decoded as a big-endian
// 32-bit float, matching the field controllers' existing wire format
// (original_source/src/modbus_poller.py's BinaryPayloadDecoder with
// byteorder=big, wordorder=little).
type ZoneRegister struct {
	TemperatureAddr uint16
	SetpointAddr    uint16
}

// Modbus is a minimal Modbus TCP client satisfying Source. It is
// intentionally narrow: one TCP dial per Latest call, carrying one
// read-holding-registers request for the temperature pair and one for the
// setpoint pair, no connection pooling, no retries. Register
// decoding and transport depth are explicitly out of scope for this core
// (spec.md §1) — this adapter exists only so the worker has something
// real to poll in an end-to-end run, not as a production fieldbus driver.
type Modbus struct {
	addr       string
	unitID     byte
	dialTimeout time.Duration
	readTimeout time.Duration

	registers map[logic.Zone]ZoneRegister

	nextTxnID uint16
}

// NewModbus creates a Modbus source dialing addr (host:port) for the given
// unit ID, with one register pair configured per zone.
func NewModbus(addr string, unitID byte, registers map[logic.Zone]ZoneRegister) *Modbus {
	return &Modbus{
		addr:        addr,
		unitID:      unitID,
		dialTimeout: 2 * time.Second,
		readTimeout: 2 * time.Second,
		registers:   registers,
	}
}

// Latest dials the controller, reads the zone's temperature and setpoint
// register pairs, and returns a Reading. Every call is a fresh connection;
// there is no persistent session to go stale.
func (m *Modbus) Latest(zone logic.Zone) (Reading, error) {
	reg, ok := m.registers[zone]
	if !ok {
		return Reading{}, fmt.Errorf("source: no modbus registers configured for zone %s", zone)
	}

	conn, err := net.DialTimeout("tcp", m.addr, m.dialTimeout)
	if err != nil {
		return Reading{}, fmt.Errorf("source: modbus dial %s: %w", m.addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(m.readTimeout))

	tWall := time.Now()

	temp, err := m.readFloat32(conn, reg.TemperatureAddr)
	if err != nil {
		return Reading{}, fmt.Errorf("source: read temperature register: %w", err)
	}
	setpoint, err := m.readFloat32(conn, reg.SetpointAddr)
	if err != nil {
		return Reading{}, fmt.Errorf("source: read setpoint register: %w", err)
	}

	valid := !math.IsNaN(temp) && !math.IsInf(temp, 0)
	return Reading{
		TMonotonic:   time.Now(),
		TWall:        tWall,
		TemperatureF: temp,
		SetpointF:    setpoint,
		Valid:        valid,
	}, nil
}

// readFloat32 issues one read-holding-registers (function code 3) request
// for two consecutive 16-bit registers starting at addr, and decodes the
// four returned bytes as a big-endian IEEE-754 float32.
func (m *Modbus) readFloat32(conn net.Conn, addr uint16) (float64, error) {
	req := m.buildReadHoldingRegisters(addr, 2)
	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("write request: %w", err)
	}

	header := make([]byte, mbapHeaderLen)
	if _, err := readFull(conn, header); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	length := binary.BigEndian.Uint16(header[4:6])
	if length < 2 {
		return 0, errors.New("modbus: malformed MBAP length")
	}
	body := make([]byte, length-1) // length counts unit ID + PDU
	if _, err := readFull(conn, body); err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}

	functionCode := body[0]
	if functionCode&0x80 != 0 {
		exceptionCode := byte(0)
		if len(body) > 1 {
			exceptionCode = body[1]
		}
		return 0, fmt.Errorf("modbus: exception response, function=0x%02x code=0x%02x", functionCode, exceptionCode)
	}
	if functionCode != fcReadHoldingRegisters {
		return 0, fmt.Errorf("modbus: unexpected function code 0x%02x", functionCode)
	}
	byteCount := int(body[1])
	if byteCount != 4 || len(body) < 2+byteCount {
		return 0, fmt.Errorf("modbus: unexpected register byte count %d", byteCount)
	}
	raw := body[2 : 2+byteCount]
	bits := binary.BigEndian.Uint32(raw)
	return float64(math.Float32frombits(bits)), nil
}

const (
	mbapHeaderLen          = 7
	fcReadHoldingRegisters = 0x03
)

func (m *Modbus) buildReadHoldingRegisters(addr uint16, quantity uint16) []byte {
	txnID := m.nextTxnID
	m.nextTxnID++

	pdu := make([]byte, 5)
	pdu[0] = fcReadHoldingRegisters
	binary.BigEndian.PutUint16(pdu[1:3], addr)
	binary.BigEndian.PutUint16(pdu[3:5], quantity)

	frame := make([]byte, mbapHeaderLen+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], txnID)
	binary.BigEndian.PutUint16(frame[2:4], 0) // protocol ID, always 0 for Modbus TCP
	binary.BigEndian.PutUint16(frame[4:6], uint16(len(pdu)+1))
	frame[6] = m.unitID
	copy(frame[7:], pdu)
	return frame
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
