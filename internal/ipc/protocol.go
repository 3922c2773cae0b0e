// Package ipc provides the control socket between a running macrotoggle
// daemon and the "macrotoggle ctl" client.
//
// Messages are a fixed 16-byte header followed by a JSON payload, exchanged
// over a unix socket that only the owning user may connect to.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x4D54474C // "MTGL"
)

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing  MessageType = 0x0001
	MsgPong  MessageType = 0x0002
	MsgError MessageType = 0x0005

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Macro control (0x02xx)
	MsgToggle     MessageType = 0x0200
	MsgToggleResp MessageType = 0x0201
	MsgQuit       MessageType = 0x0202
	MsgQuitResp   MessageType = 0x0203
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgError:
		return "error"
	case MsgStatusRequest:
		return "status"
	case MsgStatusResponse:
		return "status_response"
	case MsgToggle:
		return "toggle"
	case MsgToggleResp:
		return "toggle_response"
	case MsgQuit:
		return "quit"
	case MsgQuitResp:
		return "quit_response"
	default:
		return fmt.Sprintf("message(0x%04x)", uint16(t))
	}
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Reserved
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// MaxPayload bounds the payload a peer may announce.
const MaxPayload = 1 << 20

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// NewResponse encodes v as the payload of a message.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}

// NewErrorMessage builds an error reply.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer in a single call.
func (m *Message) Write(w io.Writer) error {
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Magic)
	buf = append(buf, m.Header.Version, m.Header.Flags)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Header.Type))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.RequestID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Encode marshals a payload.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// Decode unmarshals a payload.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Request/Response payloads

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("daemon error %d: %s", e.Code, e.Message)
}

// Error codes
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrPermissionDenied = 4
	ErrInternalError    = 5
)

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Version   string        `json:"version"`
	PID       int           `json:"pid"`
	State     string        `json:"state"`
	Trigger   string        `json:"trigger"`
	Quit      string        `json:"quit,omitempty"`
	Steps     int           `json:"steps"`
	Loop      bool          `json:"loop"`
	Device    string        `json:"device"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    time.Duration `json:"uptime"`
}

// ControlResponse acknowledges a toggle or quit. State is the controller
// state when the request was queued; the transition happens asynchronously.
type ControlResponse struct {
	Accepted bool   `json:"accepted"`
	State    string `json:"state"`
}
