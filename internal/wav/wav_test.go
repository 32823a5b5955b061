package wav

import (
	"encoding/binary"
	"testing"
)

func TestEncode_Header(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1}
	data := Encode(samples, 16000)

	if len(data) != 44+len(samples)*2 {
		t.Fatalf("Encode() returned %d bytes, want %d", len(data), 44+len(samples)*2)
	}

	if string(data[0:4]) != "RIFF" {
		t.Errorf("missing RIFF marker: %q", data[0:4])
	}
	if string(data[8:12]) != "WAVE" {
		t.Errorf("missing WAVE marker: %q", data[8:12])
	}
	if string(data[36:40]) != "data" {
		t.Errorf("missing data marker: %q", data[36:40])
	}

	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != uint32(len(samples)*2) {
		t.Errorf("data size = %d, want %d", size, len(samples)*2)
	}
}

func TestEncode_ClampsOutOfRange(t *testing.T) {
	data := Encode([]float32{2.0, -2.0}, 16000)

	first := int16(binary.LittleEndian.Uint16(data[44:46]))
	second := int16(binary.LittleEndian.Uint16(data[46:48]))

	if first != 32767 {
		t.Errorf("over-range sample = %d, want 32767", first)
	}
	if second != -32768 {
		t.Errorf("under-range sample = %d, want -32768", second)
	}
}

func TestEncode_Empty(t *testing.T) {
	data := Encode(nil, 16000)
	if len(data) != 44 {
		t.Errorf("empty input should produce a bare header, got %d bytes", len(data))
	}
}
