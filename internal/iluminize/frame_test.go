package iluminize

import (
	"bytes"
	"errors"
	"testing"
)

func mustAddr(t *testing.T, s string) Address {
	t.Helper()
	a, err := ParseAddress(s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"AABBCC", Address{0xAA, 0xBB, 0xCC}, false},
		{"aabbcc", Address{0xAA, 0xBB, 0xCC}, false},
		{"010203", Address{0x01, 0x02, 0x03}, false},
		{"ZZZZZZ", Address{}, true},
		{"AABB", Address{}, true},
		{"AABBCCDD", Address{}, true},
		{"", Address{}, true},
		{" ABBCC", Address{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Fatalf("err = %v, want ErrInvalidAddress", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %X, want %X", got, tt.want)
			}
		})
	}
}

func TestAddressString(t *testing.T) {
	if got := (Address{0xaa, 0x0b, 0x01}).String(); got != "AA0B01" {
		t.Errorf("String() = %q, want AA0B01", got)
	}
}

func TestRGBFrameScenario(t *testing.T) {
	f := RGBFrame(mustAddr(t, "AABBCC"), 255, 0, 0)
	want := []byte{0x55, 0xAA, 0xBB, 0xCC, 0xF2, 0x01, 0xFF, 0x00, 0x00, 0xF2, 0xAA, 0xAA}
	if !bytes.Equal(f[:], want) {
		t.Fatalf("frame = % X, want % X", f[:], want)
	}

	doubled := f.Doubled()
	if len(doubled) != 24 {
		t.Fatalf("doubled len = %d, want 24", len(doubled))
	}
	if !bytes.Equal(doubled[:12], want) || !bytes.Equal(doubled[12:], want) {
		t.Errorf("doubled = % X", doubled)
	}
}

func TestWhiteFrameScenario(t *testing.T) {
	f := WhiteFrame(mustAddr(t, "010203"), 75)
	// 0x00 + 0x01 + 0x08 + 0x4B + 0x4B = 0x9F
	want := []byte{0x55, 0x01, 0x02, 0x03, 0x00, 0x01, 0x08, 0x4B, 0x4B, 0x9F, 0xAA, 0xAA}
	if !bytes.Equal(f[:], want) {
		t.Fatalf("frame = % X, want % X", f[:], want)
	}
}

func TestZeroPayloads(t *testing.T) {
	addr := mustAddr(t, "123456")

	rgb := RGBFrame(addr, 0, 0, 0)
	if p := rgb.Payload(); p != [3]byte{0, 0, 0} {
		t.Errorf("rgb payload = % X, want zeros", p)
	}

	white := WhiteFrame(addr, 0)
	if p := white.Payload(); p[2] != 0 {
		t.Errorf("white level = 0x%02X, want 0", p[2])
	}
	if p := white.Payload(); p[0] != 0x08 || p[1] != 0x4B {
		t.Errorf("white prefix = % X, want 08 4B", p[:2])
	}
}

func TestChecksumMatchesIndependentSum(t *testing.T) {
	addrs := []Address{{0, 0, 0}, {0xFF, 0xFF, 0xFF}, {0x12, 0x34, 0x56}}
	classes := []byte{ClassRGB, ClassWhite}
	values := []byte{0, 1, 0x7F, 0x80, 0xFE, 0xFF}

	for _, addr := range addrs {
		for _, class := range classes {
			for _, a := range values {
				for _, b := range values {
					f := Encode(addr, class, SubSet, [3]byte{a, b, 0xFF - a})

					sum := 0
					for i := 4; i <= len(f)-4; i++ {
						sum += int(f[i])
					}
					if f[9] != byte(sum%256) {
						t.Fatalf("checksum = 0x%02X, want 0x%02X for % X", f[9], sum%256, f[:])
					}
					if f[0] != 0x55 || f[10] != 0xAA || f[11] != 0xAA {
						t.Fatalf("markers broken: % X", f[:])
					}
					if !f.Valid() {
						t.Fatalf("Valid() = false for % X", f[:])
					}
				}
			}
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	addr := mustAddr(t, "A1B2C3")
	a := RGBFrame(addr, 10, 20, 30)
	b := RGBFrame(addr, 10, 20, 30)
	if a != b {
		t.Errorf("frames differ: %s vs %s", a, b)
	}
}

func TestFrameAccessors(t *testing.T) {
	addr := mustAddr(t, "A1B2C3")
	f := RGBFrame(addr, 1, 2, 3)
	if f.Address() != addr {
		t.Errorf("Address() = %s, want %s", f.Address(), addr)
	}
	if f.Class() != ClassRGB {
		t.Errorf("Class() = 0x%02X, want 0xF2", f.Class())
	}
	if f.String() != "55 A1 B2 C3 F2 01 01 02 03 F9 AA AA" {
		t.Errorf("String() = %q", f.String())
	}
}

func TestParseFrame(t *testing.T) {
	good := RGBFrame(mustAddr(t, "AABBCC"), 1, 2, 3)

	got, err := ParseFrame(good[:])
	if err != nil {
		t.Fatal(err)
	}
	if got != good {
		t.Errorf("parsed %s, want %s", got, good)
	}

	if _, err := ParseFrame(good[:11]); !errors.Is(err, ErrFrameLength) {
		t.Errorf("short frame err = %v, want ErrFrameLength", err)
	}

	bad := good
	bad[0] = 0x00
	if _, err := ParseFrame(bad[:]); !errors.Is(err, ErrFrameMarker) {
		t.Errorf("bad marker err = %v, want ErrFrameMarker", err)
	}

	bad = good
	bad[9]++
	if _, err := ParseFrame(bad[:]); !errors.Is(err, ErrChecksum) {
		t.Errorf("bad checksum err = %v, want ErrChecksum", err)
	}
	if bad.Valid() {
		t.Error("Valid() = true for corrupted checksum")
	}
}

func TestInjectChecksumPanicsOnWrongLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for 11-byte frame")
		}
	}()
	injectChecksum(make([]byte, 11))
}
