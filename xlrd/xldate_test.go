package xlrd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXldateAsTuple(t *testing.T) {
	tests := []struct {
		xldate float64
		want   [6]int
	}{
		{2741, [6]int{1907, 7, 3, 0, 0, 0}},
		{38406, [6]int{2005, 2, 23, 0, 0, 0}},
		{32266, [6]int{1988, 5, 3, 0, 0, 0}},
		{0.273611, [6]int{0, 0, 0, 6, 34, 0}},
		{0.741123, [6]int{0, 0, 0, 17, 47, 13}},
		{38406.538889, [6]int{2005, 2, 23, 12, 56, 0}},
	}
	for _, tt := range tests {
		y, mo, d, h, mi, s, err := XldateAsTuple(tt.xldate, 0)
		require.NoError(t, err, "xldate %v", tt.xldate)
		assert.Equal(t, tt.want, [6]int{y, mo, d, h, mi, s}, "xldate %v", tt.xldate)
	}
}

func TestXldateAsTupleErrors(t *testing.T) {
	_, _, _, _, _, _, err := XldateAsTuple(-1, 0)
	assert.ErrorIs(t, err, ErrXLDateNegative)

	_, _, _, _, _, _, err = XldateAsTuple(30, 0)
	assert.ErrorIs(t, err, ErrXLDateAmbiguous)

	_, _, _, _, _, _, err = XldateAsTuple(3e6, 0)
	assert.ErrorIs(t, err, ErrXLDateTooLarge)

	_, _, _, _, _, _, err = XldateAsTuple(1, 2)
	assert.ErrorIs(t, err, ErrXLDateBadDatemode)

	var xe *XLDateError
	require.ErrorAs(t, err, &xe)
	assert.Contains(t, xe.Error(), "datemode 2")
}

func TestXldateFromTuples(t *testing.T) {
	got, err := XldateFromDateTuple(1907, 7, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 2741.0, got)

	got, err = XldateFromDatetimeTuple(1988, 5, 3, 17, 47, 13, 0)
	require.NoError(t, err)
	assert.InDelta(t, 32266.741123, got, 1e-6)

	got, err = XldateFromTimeTuple(12, 56, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.538889, got, 1e-6)

	_, err = XldateFromDateTuple(1900, 2, 29, 0)
	assert.ErrorIs(t, err, ErrXLDateBadTuple)
	_, err = XldateFromDateTuple(1900, 1, 15, 0)
	assert.ErrorIs(t, err, ErrXLDateAmbiguous)
	_, err = XldateFromTimeTuple(24, 0, 0)
	assert.ErrorIs(t, err, ErrXLDateBadTuple)
}

func TestXldateAsDatetime(t *testing.T) {
	tests := []struct {
		expected string
		xldate   float64
		datemode int
	}{
		{"1899-12-31T00:00:00.000", 0, 0},
		{"1900-02-28T02:11:11.986", 59.09111094906, 0},
		{"1900-03-01T05:46:44.068", 61.24078782403, 0},
		{"1982-08-25T00:15:20.213", 30188.010650613425, 0},
		{"9999-12-31T23:59:59.000", 2958465.999988426, 0},
		{"1899-12-31T23:59:59.999", 0.99999998842592586, 0},
		{"1904-01-01T00:00:00.000", 0, 1},
		{"2000-01-01T00:00:00.000", 35064, 1},
		{"9999-12-31T00:00:00.000", 2957003, 1},
	}
	for _, tt := range tests {
		want, err := time.Parse("2006-01-02T15:04:05.000", tt.expected)
		require.NoError(t, err)
		got, err := XldateAsDatetime(tt.xldate, tt.datemode)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "xldate %v mode %d: got %v, want %v", tt.xldate, tt.datemode, got, want)
	}

	_, err := XldateAsDatetime(1, 3)
	assert.ErrorIs(t, err, ErrXLDateBadDatemode)
}
