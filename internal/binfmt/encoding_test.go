package binfmt

import "testing"

func TestRoundTrip(t *testing.T) {
	b := make([]byte, 32)
	PutU32(b, 0, 0xdeadbeef)
	if ReadU32(b, 0) != 0xdeadbeef {
		t.Fatal("u32 round trip failed")
	}
	PutU64(b, 4, 0x0102030405060708)
	if ReadU64(b, 4) != 0x0102030405060708 {
		t.Fatal("u64 round trip failed")
	}
	PutF32(b, 12, 3.5)
	if ReadF32(b, 12) != 3.5 {
		t.Fatal("f32 round trip failed")
	}
	PutF64(b, 16, 2.25)
	if ReadF64(b, 16) != 2.25 {
		t.Fatal("f64 round trip failed")
	}
	if ReadI32(b, 0) != -559038737 { // 0xdeadbeef as a two's-complement int32
		t.Fatal("i32 round trip failed")
	}
}
