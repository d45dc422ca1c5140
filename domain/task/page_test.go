package task

import (
	"math"
	"testing"
)

func TestPageable_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Pageable
		want Pageable
	}{
		{"defaults", Pageable{}, Pageable{Page: 0, Size: DefaultPageSize}},
		{"negative page", Pageable{Page: -3, Size: 5}, Pageable{Page: 0, Size: 5}},
		{"oversized", Pageable{Page: 2, Size: 1000}, Pageable{Page: 2, Size: MaxPageSize}},
		{"huge page", Pageable{Page: math.MaxInt, Size: 10}, Pageable{Page: MaxOffset / 10, Size: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPageable_Offset(t *testing.T) {
	if got := (Pageable{Page: 3, Size: 20}).Offset(); got != 60 {
		t.Errorf("Offset() = %d, want 60", got)
	}

	for _, size := range []int{1, 7, MaxPageSize, 1000} {
		got := Pageable{Page: math.MaxInt, Size: size}.Offset()
		if got < 0 || got > MaxOffset {
			t.Errorf("Offset() for size %d = %d, want within [0, %d]", size, got, MaxOffset)
		}
	}
}
