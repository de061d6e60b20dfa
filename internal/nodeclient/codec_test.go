package nodeclient

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	req := checksumReqMsg{VolumeID: "v1", Position: 42, Algo: "SHA-512"}
	if err := writeFrame(&buf, frameChecksumReq, req); err != nil {
		t.Fatalf("writeFrame() error = %v", err)
	}

	gotType, payload, err := readRawFrame(&buf)
	if err != nil {
		t.Fatalf("readRawFrame() error = %v", err)
	}
	if gotType != frameChecksumReq {
		t.Fatalf("frame type = %v, want %v", gotType, frameChecksumReq)
	}

	var got checksumReqMsg
	if err := decodePayload(payload, &got); err != nil {
		t.Fatalf("decodePayload() error = %v", err)
	}
	if got != req {
		t.Fatalf("decoded = %+v, want %+v", got, req)
	}
}

func TestWriteFrameEmptyPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	if err := writeFrame(&buf, frameWriteResp, writeRespMsg{}); err != nil {
		t.Fatalf("writeFrame() error = %v", err)
	}

	gotType, payload, err := readRawFrame(&buf)
	if err != nil {
		t.Fatalf("readRawFrame() error = %v", err)
	}
	if gotType != frameWriteResp {
		t.Fatalf("frame type = %v, want %v", gotType, frameWriteResp)
	}
	if len(payload) != 0 {
		t.Fatalf("payload length = %d, want 0 for an empty struct", len(payload))
	}
}

func TestReadRawFrameRejectsOversizedLength(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	// Header claiming a payload far larger than maxPayloadBytes, with no
	// actual payload bytes following.
	header := []byte{0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, _, err := readRawFrame(&buf)
	if err == nil {
		t.Fatal("readRawFrame() expected an error for an oversized length, got nil")
	}
}
