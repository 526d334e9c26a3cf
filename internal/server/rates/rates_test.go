package rates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefault_Convert(t *testing.T) {
	tbl := Default()

	tests := []struct {
		name     string
		amount   string
		from, to string
		want     string
	}{
		{"deposit XOF to SRT", "1000", "XOF", "SRT", "100"},
		{"cash-out SRT to GHS", "40", "SRT", "GHS", "20"},
		{"inverse SRT to XOF", "50", "SRT", "XOF", "500"},
		{"inverse GHS to SRT", "3", "ghs", "srt", "6"},
		{"identity", "12.3456789", "SRT", "SRT", "12.3456789"},
		{"rounded to scale", "0.00000001", "XOF", "SRT", "0"},
		{"fraction", "333", "XOF", "SRT", "33.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tbl.Convert(d(tt.amount), tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestConvert_UnknownPair(t *testing.T) {
	_, err := Default().Convert(d("1"), "XOF", "GHS")
	assert.ErrorIs(t, err, ErrUnknownPair)

	_, err = Default().Rate("EUR", "SRT")
	assert.ErrorIs(t, err, ErrUnknownPair)
}

func TestRate_Inverse(t *testing.T) {
	r, err := Default().Rate("SRT", "XOF")
	require.NoError(t, err)
	assert.True(t, r.Equal(d("10")), r.String())
}

func TestParse(t *testing.T) {
	tbl, err := Parse([]byte(`
scale: 2
rates:
  - {from: xof, to: SRT, rate: "0.1"}
  - {from: SRT, to: USDC, rate: 1.25}
`))
	require.NoError(t, err)

	got, err := tbl.Convert(d("3"), "SRT", "USDC")
	require.NoError(t, err)
	assert.True(t, got.Equal(d("3.75")), got.String())

	got, err = tbl.Convert(d("1"), "USDC", "SRT")
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.8")), got.String())
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "rates: [",
		"zero rate":      `rates: [{from: A, to: B, rate: "0"}]`,
		"negative rate":  `rates: [{from: A, to: B, rate: "-1"}]`,
		"not a number":   `rates: [{from: A, to: B, rate: "abc"}]`,
		"same code":      `rates: [{from: A, to: a, rate: "1"}]`,
		"missing code":   `rates: [{from: A, rate: "1"}]`,
		"duplicate pair": `rates: [{from: A, to: B, rate: "1"}, {from: a, to: b, rate: "2"}]`,
		"negative scale": `scale: -1`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), tbl)

	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rates: [{from: XOF, to: SRT, rate: "0.2"}]`), 0o600))
	tbl, err = Load(path)
	require.NoError(t, err)
	got, err := tbl.Convert(d("10"), "XOF", "SRT")
	require.NoError(t, err)
	assert.True(t, got.Equal(d("2")))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
