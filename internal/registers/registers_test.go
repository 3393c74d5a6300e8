package registers

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind Kind
		str  string
	}{
		{"text", "0e0454657374", KindBytes, "Test"},
		{"empty bytes", "0e00", KindBytes, ""},
		{"bool true", "0101", KindBool, "true"},
		{"byte negative", "02ff", KindByte, "-1"},
		{"short", "0306", KindShort, "3"},
		{"int negative", "0401", KindInt, "-1"},
		{"long", "05a09c01", KindLong, "10000"},
		{"coll of coll", "1a020161026262", KindBytesColl, "[61,6262]"},
		{"binary bytes", "0e01ff", KindBytes, "ff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode(tt.in)
			if err != nil {
				t.Fatalf("Decode(%s): %v", tt.in, err)
			}
			if v.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", v.Kind, tt.kind)
			}
			if got := v.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"bad hex", "zz"},
		{"odd hex", "0e0"},
		{"unsupported tag", "ff00"},
		{"truncated bytes", "0e05414243"},
		{"trailing bytes", "0e01414243"},
		{"trailing after int", "0402ff"},
		{"truncated long", "05"},
		{"unterminated varint", "0580"},
		{"bad bool", "0102"},
		{"short overflow", "0380f104"},
		{"coll length past end", "1a05"},
		{"coll element truncated", "1a02016102"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			if err == nil {
				t.Fatalf("Decode(%q) should fail", tt.in)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error %T is not *DecodeError", err)
			}
			if !errors.Is(err, ErrDecode) {
				t.Error("error should wrap ErrDecode")
			}
		})
	}
}

func TestDecode_NeverPanics(t *testing.T) {
	for tag := 0; tag < 256; tag++ {
		for _, payload := range [][]byte{nil, {0x00}, {0xff}, {0x80, 0x80}, {0x05, 0x01}, {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}} {
			in := hex.EncodeToString(append([]byte{byte(tag)}, payload...))
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("Decode(%s) panicked: %v", in, r)
					}
				}()
				Decode(in)
			}()
		}
	}
}

func TestValue_Text(t *testing.T) {
	v, _ := Decode(EncodeText("Collection:Test"))
	s, err := v.Text()
	if err != nil || s != "Collection:Test" {
		t.Errorf("Text() = %q, %v", s, err)
	}

	v, _ = Decode("0e01ff")
	if _, err := v.Text(); !errors.Is(err, ErrNotText) {
		t.Errorf("invalid utf-8 Text() error = %v, want ErrNotText", err)
	}
	v, _ = Decode("05a09c01")
	if _, err := v.Text(); !errors.Is(err, ErrNotText) {
		t.Errorf("Long Text() error = %v, want ErrNotText", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 10000, -123456789, 1 << 62} {
		v, err := Decode(EncodeLong(n))
		if err != nil || v.Int != n {
			t.Errorf("Long %d -> %d, %v", n, v.Int, err)
		}
	}
	for _, n := range []int32{0, 7, -7, 1 << 30} {
		v, err := Decode(EncodeInt(n))
		if err != nil || v.Int != int64(n) {
			t.Errorf("Int %d -> %d, %v", n, v.Int, err)
		}
	}
	payload := bytes.Repeat([]byte{0xab}, 300)
	v, err := Decode(EncodeBytes(payload))
	if err != nil || !bytes.Equal(v.Bytes, payload) {
		t.Errorf("300-byte collection roundtrip failed: %v", err)
	}
}

func TestDecodeMap(t *testing.T) {
	regs := map[string]string{
		"R4": EncodeText("Ghost #1"),
		"R5": "zz",
		"R7": EncodeText("Collection:Spooky"),
	}
	res := DecodeMap(regs)
	if len(res) != 3 {
		t.Fatalf("results = %d, want 3", len(res))
	}
	if !res["R4"].OK() || res["R4"].Value.String() != "Ghost #1" {
		t.Errorf("R4 = %+v", res["R4"])
	}
	if res["R5"].OK() || !errors.Is(res["R5"].Err, ErrDecode) {
		t.Errorf("R5 should fail with ErrDecode, got %v", res["R5"].Err)
	}
	if !res["R7"].OK() {
		t.Errorf("R7 failed: %v", res["R7"].Err)
	}

	if s, ok := Text(regs, "R7"); !ok || s != "Collection:Spooky" {
		t.Errorf("Text(R7) = %q, %v", s, ok)
	}
	for _, name := range []string{"R5", "R6"} {
		if _, ok := Text(regs, name); ok {
			t.Errorf("Text(%s) should not be ok", name)
		}
	}
}
