package common

import (
	"testing"
)

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte("s3cret")
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"bearer   xyz ", "xyz"},
		{"Basic Zm9v", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Fatalf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
