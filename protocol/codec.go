// Package protocol is the binary framing of the control channel.
//
// Every frame starts with a 4 byte header:
//
//	+--------+---------+---------+-------+
//	| magic  | version | command | flags |
//	+--------+---------+---------+-------+
//	| 1B     | 1B      | 1B      | 1B    |
//	+--------+---------+---------+-------+
//
// Responses follow it with a 2 byte status. Integers are big endian, keys carry
// a 2 byte length and values a 4 byte length.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/Borislavv/go-hotkv/model"
	"time"
)

const (
	Magic   byte = 0xA7
	Version byte = 1

	HeaderSize = 4

	// MaxBatch bounds the items of one BATCH_PROMOTE frame.
	MaxBatch = 1<<16 - 1
	// MaxKeyLen is the longest key a frame can carry.
	MaxKeyLen = 1<<16 - 1
)

type Command uint8

const (
	CmdRead         Command = 1
	CmdInvalidate   Command = 2
	CmdBatchPromote Command = 3
)

func (c Command) String() string {
	switch c {
	case CmdRead:
		return "READ"
	case CmdInvalidate:
		return "INVALIDATE"
	case CmdBatchPromote:
		return "BATCH_PROMOTE"
	default:
		return fmt.Sprintf("CMD(%d)", uint8(c))
	}
}

// FlagResponse marks frames sent by the data plane. Requests carry no flags.
const FlagResponse byte = 1 << 0

var ErrMalformed = errors.New("malformed frame")

type Header struct {
	Magic   byte
	Version byte
	Command Command
	Flags   byte
}

// Request is a decoded command. Only the fields of its command are used.
type Request struct {
	Command Command
	Tenant  model.TenantID
	Key     []byte
	// ExpectedVersion is the READ version hint, zero for none.
	ExpectedVersion uint64
	Items           []model.PromoteItem
}

// Response answers a Request with the same command. Results are in request order.
type Response struct {
	Command Command
	Status  Status
	Read    model.ReadResult
	Results []model.PromoteResult
}

func appendHeader(dst []byte, cmd Command, flags byte) []byte {
	return append(dst, Magic, Version, byte(cmd), flags)
}

// ParseHeader validates the frame header.
func ParseHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformed, len(frame))
	}
	h := Header{Magic: frame[0], Version: frame[1], Command: Command(frame[2]), Flags: frame[3]}
	if h.Magic != Magic {
		return h, fmt.Errorf("%w: bad magic 0x%02x", ErrMalformed, h.Magic)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: frame version %d, want %d", StatusVersionMismatch, h.Version, Version)
	}
	switch h.Command {
	case CmdRead, CmdInvalidate, CmdBatchPromote:
	default:
		return h, fmt.Errorf("%w: %s", StatusUnsupportedCommand, h.Command)
	}
	return h, nil
}

func AppendRequest(dst []byte, req *Request) ([]byte, error) {
	dst = appendHeader(dst, req.Command, 0)
	var err error
	switch req.Command {
	case CmdRead:
		dst = binary.BigEndian.AppendUint32(dst, uint32(req.Tenant))
		dst = binary.BigEndian.AppendUint64(dst, req.ExpectedVersion)
		dst, err = appendKey(dst, req.Key)
	case CmdInvalidate:
		dst = binary.BigEndian.AppendUint32(dst, uint32(req.Tenant))
		dst, err = appendKey(dst, req.Key)
	case CmdBatchPromote:
		if len(req.Items) > MaxBatch {
			return dst, fmt.Errorf("%w: batch of %d items exceeds %d", StatusInvalidInput, len(req.Items), MaxBatch)
		}
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(req.Items)))
		for i := range req.Items {
			if dst, err = appendItem(dst, &req.Items[i]); err != nil {
				break
			}
		}
	default:
		return dst, fmt.Errorf("%w: %s", StatusUnsupportedCommand, req.Command)
	}
	return dst, err
}

func appendItem(dst []byte, it *model.PromoteItem) ([]byte, error) {
	dst = binary.BigEndian.AppendUint32(dst, uint32(it.Tenant))
	dst = binary.BigEndian.AppendUint64(dst, uint64(max(it.TTL, 0)))
	dst = append(dst, it.Estimate)
	dst, err := appendKey(dst, it.Key)
	if err != nil {
		return dst, err
	}
	if uint64(len(it.Value)) > 1<<32-1 {
		return dst, fmt.Errorf("%w: value of %d bytes", StatusValueTooLong, len(it.Value))
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(it.Value)))
	return append(dst, it.Value...), nil
}

func appendKey(dst, key []byte) ([]byte, error) {
	if len(key) > MaxKeyLen {
		return dst, fmt.Errorf("%w: key of %d bytes", StatusKeyTooLong, len(key))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(key)))
	return append(dst, key...), nil
}

// DecodeRequest parses a request frame. Keys and values alias frame.
func DecodeRequest(frame []byte) (*Request, error) {
	h, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}
	if h.Flags != 0 {
		return nil, fmt.Errorf("%w: request flags 0x%02x", ErrMalformed, h.Flags)
	}

	r := reader{b: frame[HeaderSize:]}
	req := &Request{Command: h.Command}
	switch h.Command {
	case CmdRead:
		req.Tenant = model.TenantID(r.u32())
		req.ExpectedVersion = r.u64()
		req.Key = r.key()
	case CmdInvalidate:
		req.Tenant = model.TenantID(r.u32())
		req.Key = r.key()
	case CmdBatchPromote:
		n := int(r.u16())
		// every item takes at least 19 bytes, so a short frame cannot claim a huge batch
		if n*19 > len(r.b) {
			return nil, fmt.Errorf("%w: %d items do not fit in %d bytes", ErrMalformed, n, len(r.b))
		}
		req.Items = make([]model.PromoteItem, n)
		for i := range req.Items {
			it := &req.Items[i]
			it.Tenant = model.TenantID(r.u32())
			it.TTL = time.Duration(r.u64())
			it.Estimate = r.u8()
			it.Key = r.key()
			it.Value = r.bytes(int(r.u32()))
			if it.TTL < 0 {
				return nil, fmt.Errorf("%w: negative ttl", ErrMalformed)
			}
		}
	}
	if err = r.done(); err != nil {
		return nil, err
	}
	return req, nil
}

// AppendResponse encodes resp. A non-OK status carries no body.
func AppendResponse(dst []byte, resp *Response) []byte {
	dst = appendHeader(dst, resp.Command, FlagResponse)
	dst = binary.BigEndian.AppendUint16(dst, uint16(resp.Status))
	if resp.Status != StatusOK {
		return dst
	}
	switch resp.Command {
	case CmdRead:
		rr := &resp.Read
		var hit byte
		if rr.Hit {
			hit = 1
		}
		dst = append(dst, hit, byte(rr.Freshness))
		dst = binary.BigEndian.AppendUint64(dst, rr.Version)
		dst = binary.BigEndian.AppendUint64(dst, uint64(max(rr.StaleFor, 0)))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(rr.Value)))
		dst = append(dst, rr.Value...)
	case CmdBatchPromote:
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(resp.Results)))
		for _, res := range resp.Results {
			dst = append(dst, byte(res.Status))
			dst = binary.BigEndian.AppendUint64(dst, res.Version)
		}
	}
	return dst
}

// DecodeResponse parses a response frame. Promote results carry no keys; the
// caller matches them with its request by position.
//
// An error answer to an unknown command echoes that command, so its header is
// accepted as long as the status is not OK.
func DecodeResponse(frame []byte) (*Response, error) {
	h, err := ParseHeader(frame)
	if err != nil && !(errors.Is(err, StatusUnsupportedCommand) && errorAnswer(frame)) {
		return nil, err
	}
	if h.Flags != FlagResponse {
		return nil, fmt.Errorf("%w: response flags 0x%02x", ErrMalformed, h.Flags)
	}

	r := reader{b: frame[HeaderSize:]}
	resp := &Response{Command: h.Command, Status: Status(r.u16())}
	if r.err == nil && resp.Status != StatusOK {
		return resp, r.done()
	}
	switch h.Command {
	case CmdRead:
		resp.Read.Hit = r.u8() == 1
		resp.Read.Freshness = model.Freshness(r.u8())
		resp.Read.Version = r.u64()
		resp.Read.StaleFor = time.Duration(r.u64())
		resp.Read.Value = r.bytes(int(r.u32()))
		if resp.Read.Freshness > model.Tombstoned {
			return nil, fmt.Errorf("%w: freshness %d", ErrMalformed, resp.Read.Freshness)
		}
	case CmdBatchPromote:
		n := int(r.u16())
		if n*9 > len(r.b) {
			return nil, fmt.Errorf("%w: %d results do not fit in %d bytes", ErrMalformed, n, len(r.b))
		}
		resp.Results = make([]model.PromoteResult, n)
		for i := range resp.Results {
			resp.Results[i].Status = model.PromoteStatus(r.u8())
			resp.Results[i].Version = r.u64()
		}
	}
	if err = r.done(); err != nil {
		return nil, err
	}
	return resp, nil
}

// reader consumes a frame body; the first short read sticks as err.
type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.b) {
		r.err = fmt.Errorf("%w: truncated, need %d bytes, have %d", ErrMalformed, n, len(r.b))
		return nil
	}
	out := r.b[:n:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) key() []byte { return r.bytes(int(r.u16())) }

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	return r.take(n)
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.b) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.b))
	}
	return nil
}

func errorAnswer(frame []byte) bool {
	return len(frame) >= HeaderSize+2 && binary.BigEndian.Uint16(frame[HeaderSize:]) != uint16(StatusOK)
}
