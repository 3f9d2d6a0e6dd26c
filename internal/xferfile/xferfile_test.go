package xferfile

import "testing"

func TestBeginRoundTrip(t *testing.T) {
	b, err := EncodeBegin("report.pdf")
	if err != nil {
		t.Fatalf("EncodeBegin: %v", err)
	}
	frame, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Type != MessageBegin || frame.Filename != "report.pdf" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestDataRoundTrip(t *testing.T) {
	b, err := EncodeData([]byte("some file bytes"))
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	frame, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Type != MessageData || string(frame.Chunk) != "some file bytes" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestEndRoundTrip(t *testing.T) {
	frame, err := Decode(EncodeEnd())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Type != MessageEnd {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestEncodeDataRejectsOversizedChunk(t *testing.T) {
	if _, err := EncodeData(make([]byte, MaxChunkLen+1)); err == nil {
		t.Fatalf("expected error for oversized chunk")
	}
}

func TestEncodeBeginRejectsOversizedFilename(t *testing.T) {
	big := make([]byte, MaxFilenameLen+1)
	for i := range big {
		big[i] = 'a'
	}
	if _, err := EncodeBegin(string(big)); err == nil {
		t.Fatalf("expected error for oversized filename")
	}
}

func TestDecodeNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		{0x00, 0x00, 0x00},
		{0x00, 0x00, 0x00, 0x09, 'x'},          // unknown type 9
		{0x00, 0x00, 0x00, byte(MessageEnd), 1}, // END with a body
	}
	for _, in := range inputs {
		if _, err := Decode(in); err == nil {
			t.Fatalf("expected an error decoding %v", in)
		}
	}
}
