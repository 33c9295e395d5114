package inworld

import (
	"encoding/binary"
	"testing"
)

func TestWrapPCMAddsHeader(t *testing.T) {
	pcm := make([]byte, 320)
	out := wrapPCM(pcm, 24000)

	if len(out) != 44+len(pcm) {
		t.Fatalf("wrapped length = %d, want %d", len(out), 44+len(pcm))
	}
	if string(out[:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 24000 {
		t.Fatalf("sample rate = %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", got, len(pcm))
	}
}

func TestWrapPCMPassthrough(t *testing.T) {
	already := append([]byte("RIFF"), make([]byte, 40)...)
	out := wrapPCM(already, 24000)
	if len(out) != len(already) {
		t.Fatal("RIFF-prefixed chunk must pass through unchanged")
	}
}
