package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundUsesBankersRounding(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.005", "10.00"},
		{"10.015", "10.02"},
		{"10.025", "10.02"},
		{"10.017", "10.02"},
		{"-10.005", "-10.00"},
	}
	for _, tt := range tests {
		got := Round(decimal.RequireFromString(tt.in))
		if got.StringFixed(2) != tt.want {
			t.Errorf("Round(%s) = %s, want %s", tt.in, got.StringFixed(2), tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	got := Percent(decimal.NewFromInt(250), decimal.RequireFromString("2.5"))
	if !got.Equal(decimal.RequireFromString("6.25")) {
		t.Errorf("Percent(250, 2.5) = %s, want 6.25", got)
	}
}

func TestCentsRoundTrip(t *testing.T) {
	value := decimal.RequireFromString("123.45")
	cents := ToCents(value)
	if cents != 12345 {
		t.Fatalf("ToCents = %d, want 12345", cents)
	}
	if back := FromCents(cents); !back.Equal(value) {
		t.Errorf("FromCents(%d) = %s, want %s", cents, back, value)
	}
}

func TestFormatBRL(t *testing.T) {
	if got := FormatBRL(decimal.RequireFromString("1234.5")); got != "R$ 1234.50" {
		t.Errorf("FormatBRL = %q", got)
	}
}
