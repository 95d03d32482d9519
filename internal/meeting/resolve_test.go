package meeting

import (
	"testing"
	"time"
)

func TestFireAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, msk)
	p, ok := Parse("02.05 МТС 10:00 2в", msk, now)
	if !ok {
		t.Fatalf("parse failed")
	}

	tests := []struct {
		name   string
		offset int
		want   time.Time
	}{
		{name: "default lead", offset: 30, want: time.Date(2024, 5, 2, 9, 30, 0, 0, msk)},
		{name: "zero lead", offset: 0, want: time.Date(2024, 5, 2, 10, 0, 0, 0, msk)},
		{name: "negative lead clamps to zero", offset: -15, want: time.Date(2024, 5, 2, 10, 0, 0, 0, msk)},
		{name: "large lead", offset: 240, want: time.Date(2024, 5, 2, 6, 0, 0, 0, msk)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FireAt(p, tt.offset)
			if !got.Equal(tt.want) {
				t.Fatalf("FireAt = %v, want %v", got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Fatalf("FireAt location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestFireAtInPastIsValid(t *testing.T) {
	t.Parallel()

	// A meeting 10 minutes from now with a 30 minute lead resolves to
	// an instant already behind us; that is an immediate-send signal,
	// not an error.
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, msk)
	p, ok := Parse("01.05 МТС 12:10 2в", msk, now)
	if !ok {
		t.Fatalf("parse failed")
	}
	got := FireAt(p, 30)
	if !got.Before(now) {
		t.Fatalf("FireAt = %v, want before now %v", got, now)
	}
}
