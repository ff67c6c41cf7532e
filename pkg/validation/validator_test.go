package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	When   string   `validate:"required,isotime"`
	Wallet string   `validate:"omitempty,address"`
	TxID   string   `validate:"omitempty,txid"`
	Amount *float64 `validate:"omitempty,amount"`
}

func ptr(v float64) *float64 { return &v }

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-01-02T03:04:05.000006Z":      time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC),
		"2024-01-02T03:04:05+00:00":        time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"2024-01-02T03:04:05.123456":       time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC),
		"2024-01-01T00:00:00":              time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024-01-02T03:04:05.000006+00:00": time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(want), "%s parsed as %v; want %v", in, got, want)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestValidateStruct(t *testing.T) {
	assert.Empty(t, ValidateStruct(sample{When: "2024-01-01T00:00:00", Wallet: "wallet_007", TxID: "00ff00ff00ff00ff", Amount: ptr(0)}))

	errs := ValidateStruct(sample{})
	require.Len(t, errs, 1)
	assert.Equal(t, "When", errs[0].Field)
	assert.Equal(t, "When is required", errs[0].Message)

	cases := []struct {
		name  string
		in    sample
		field string
	}{
		{"bad time", sample{When: "nope"}, "When"},
		{"bad wallet", sample{When: "2024-01-01T00:00:00", Wallet: "wallet_7"}, "Wallet"},
		{"upper case tx id", sample{When: "2024-01-01T00:00:00", TxID: "00FF00FF00FF00FF"}, "TxID"},
		{"negative amount", sample{When: "2024-01-01T00:00:00", Amount: ptr(-1)}, "Amount"},
		{"nan amount", sample{When: "2024-01-01T00:00:00", Amount: ptr(math.NaN())}, "Amount"},
		{"inf amount", sample{When: "2024-01-01T00:00:00", Amount: ptr(math.Inf(1))}, "Amount"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			errs := ValidateStruct(c.in)
			require.Len(t, errs, 1)
			assert.Equal(t, c.field, errs[0].Field)
			assert.Contains(t, errs.Error(), c.field)
		})
	}
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  a\x00b\x07c \n"))
	assert.Equal(t, "a\tb", SanitizeString("a\tb"))
}
