package protocol

import (
	"bytes"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

// TestRequest_BatchPromote verifies that a batch survives the wire with every item field.
func TestRequest_BatchPromote(t *testing.T) {
	in := &Request{Command: CmdBatchPromote, Items: []model.PromoteItem{
		{Tenant: 1, Key: []byte("user:1"), Value: []byte("alice"), TTL: time.Minute, Estimate: 9},
		{Tenant: 2, Key: []byte("user:2"), Value: nil, Estimate: 15},
	}}
	frame, err := AppendRequest(nil, in)
	require.NoError(t, err)

	out, err := DecodeRequest(frame)
	require.NoError(t, err)
	require.Equal(t, CmdBatchPromote, out.Command)
	require.Len(t, out.Items, 2)
	require.Equal(t, model.TenantID(1), out.Items[0].Tenant)
	require.Equal(t, []byte("user:1"), out.Items[0].Key)
	require.Equal(t, []byte("alice"), out.Items[0].Value)
	require.Equal(t, time.Minute, out.Items[0].TTL)
	require.Equal(t, uint8(9), out.Items[0].Estimate)
	require.Empty(t, out.Items[1].Value)
}

// TestRequest_ReadCarriesVersionHint verifies the READ layout byte by byte.
func TestRequest_ReadCarriesVersionHint(t *testing.T) {
	frame, err := AppendRequest(nil, &Request{Command: CmdRead, Tenant: 7, Key: []byte("k"), ExpectedVersion: 3})
	require.NoError(t, err)
	require.Equal(t, []byte{
		0xA7, 1, 1, 0, // header
		0, 0, 0, 7, // tenant
		0, 0, 0, 0, 0, 0, 0, 3, // expected version
		0, 1, 'k', // key
	}, frame)

	req, err := DecodeRequest(frame)
	require.NoError(t, err)
	require.Equal(t, uint64(3), req.ExpectedVersion)
	require.Equal(t, model.TenantID(7), req.Tenant)
}

// TestResponse_Read verifies stale read results on the wire.
func TestResponse_Read(t *testing.T) {
	in := &Response{Command: CmdRead, Read: model.ReadResult{
		Hit: true, Value: []byte("v"), Version: 42, Freshness: model.Stale, StaleFor: 250 * time.Millisecond,
	}}
	out, err := DecodeResponse(AppendResponse(nil, in))
	require.NoError(t, err)
	require.Equal(t, StatusOK, out.Status)
	require.Equal(t, in.Read, out.Read)
	require.True(t, out.Read.IsStale())
}

// TestResponse_PromoteResultsKeepOrder verifies per-item statuses.
func TestResponse_PromoteResultsKeepOrder(t *testing.T) {
	in := &Response{Command: CmdBatchPromote, Results: []model.PromoteResult{
		{Status: model.Admitted, Version: 1},
		{Status: model.CapacityExceeded},
		{Status: model.Invalidated},
	}}
	out, err := DecodeResponse(AppendResponse(nil, in))
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	require.Equal(t, model.Admitted, out.Results[0].Status)
	require.Equal(t, uint64(1), out.Results[0].Version)
	require.Equal(t, model.CapacityExceeded, out.Results[1].Status)
	require.Equal(t, model.Invalidated, out.Results[2].Status)
}

// TestResponse_ErrorHasNoBody verifies that an error status ends the frame.
func TestResponse_ErrorHasNoBody(t *testing.T) {
	frame := AppendResponse(nil, &Response{Command: CmdRead, Status: StatusBusy, Read: model.ReadResult{Hit: true}})
	require.Len(t, frame, HeaderSize+2)

	out, err := DecodeResponse(frame)
	require.NoError(t, err)
	require.Equal(t, StatusBusy, out.Status)
	require.False(t, out.Read.Hit)
}

// TestDecode_RejectsBadFrames verifies header and body validation.
func TestDecode_RejectsBadFrames(t *testing.T) {
	valid, err := AppendRequest(nil, &Request{Command: CmdInvalidate, Tenant: 1, Key: []byte("key")})
	require.NoError(t, err)

	badMagic := bytes.Clone(valid)
	badMagic[0] = 0x00
	_, err = DecodeRequest(badMagic)
	require.ErrorIs(t, err, ErrMalformed)
	require.Equal(t, StatusProtocolViolation, StatusOf(err))

	badVersion := bytes.Clone(valid)
	badVersion[1] = 9
	_, err = DecodeRequest(badVersion)
	require.ErrorIs(t, err, StatusVersionMismatch)
	require.Equal(t, StatusVersionMismatch, StatusOf(err))

	badCommand := bytes.Clone(valid)
	badCommand[2] = 99
	_, err = DecodeRequest(badCommand)
	require.Equal(t, StatusUnsupportedCommand, StatusOf(err))

	_, err = DecodeRequest(valid[:len(valid)-1])
	require.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeRequest(append(bytes.Clone(valid), 0))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeResponse(valid)
	require.ErrorIs(t, err, ErrMalformed, "a request is not a response")

	_, err = DecodeRequest([]byte{0xA7, 1, 3, 0, 0xFF, 0xFF})
	require.ErrorIs(t, err, ErrMalformed, "a huge batch count on a short frame")
}

// TestAppendRequest_RejectsOversizedKey verifies that keys beyond the length field are refused.
func TestAppendRequest_RejectsOversizedKey(t *testing.T) {
	_, err := AppendRequest(nil, &Request{Command: CmdRead, Key: make([]byte, MaxKeyLen+1)})
	require.ErrorIs(t, err, StatusKeyTooLong)
	require.Equal(t, CategoryClient, StatusOf(err).Category())
}

// FuzzDecodeRequest checks that decoding never panics and that accepted frames re-encode identically.
func FuzzDecodeRequest(f *testing.F) {
	for _, req := range []*Request{
		{Command: CmdRead, Tenant: 1, Key: []byte("a"), ExpectedVersion: 2},
		{Command: CmdInvalidate, Tenant: 3, Key: []byte("bb")},
		{Command: CmdBatchPromote, Items: []model.PromoteItem{{Tenant: 1, Key: []byte("k"), Value: []byte("v"), TTL: time.Second}}},
	} {
		frame, err := AppendRequest(nil, req)
		require.NoError(f, err)
		f.Add(frame)
	}

	f.Fuzz(func(t *testing.T, frame []byte) {
		req, err := DecodeRequest(frame)
		if err != nil {
			return
		}
		again, err := AppendRequest(nil, req)
		require.NoError(t, err)
		require.Equal(t, frame, again)
	})
}

// FuzzDecodeResponse checks that decoding never panics.
func FuzzDecodeResponse(f *testing.F) {
	f.Add(AppendResponse(nil, &Response{Command: CmdRead, Read: model.ReadResult{Hit: true, Value: []byte("v")}}))
	f.Add(AppendResponse(nil, &Response{Command: CmdBatchPromote, Results: []model.PromoteResult{{Version: 1}}}))
	f.Add(AppendResponse(nil, &Response{Command: CmdInvalidate, Status: StatusTimeout}))

	f.Fuzz(func(t *testing.T, frame []byte) {
		_, _ = DecodeResponse(frame)
	})
}

// TestDecodeResponse_UnknownCommandError accepts error answers to commands the
// server did not recognise.
func TestDecodeResponse_UnknownCommandError(t *testing.T) {
	frame := AppendResponse(nil, &Response{Command: 0, Status: StatusProtocolViolation})
	resp, err := DecodeResponse(frame)
	require.NoError(t, err)
	require.Equal(t, StatusProtocolViolation, resp.Status)

	_, err = DecodeResponse(AppendResponse(nil, &Response{Command: 9}))
	require.ErrorIs(t, err, StatusUnsupportedCommand)
}
