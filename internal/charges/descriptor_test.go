package charges

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	base := decimal.RequireFromString("500.00")
	cases := []struct {
		name string
		desc *Descriptor
		want string
	}{
		{"absent", nil, "0"},
		{"fixed ignores base", Fixed(decimal.RequireFromString("25.00")), "25"},
		{"percentage", Percentage(decimal.RequireFromString("8.5")), "42.5"},
		{"percentage rounds half away from zero", Percentage(decimal.RequireFromString("0.001")), "0.01"},
		{"unknown kind", &Descriptor{Kind: "tiered", Value: decimal.NewFromInt(3)}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(base, tc.desc)
			require.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestKindLabel(t *testing.T) {
	require.Equal(t, "Fixed amount", KindFixed.Label())
	require.Equal(t, "Percentage", KindPercentage.Label())
	require.Equal(t, "Unknown", Kind("other").Label())
	require.False(t, Kind("other").Valid())
}
