package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampLayout(t *testing.T) {
	ts := TimestampStruct{Year: -44, Month: 3, Day: 15, Hour: 23, Minute: 59, Second: 58, Fraction: 123456789}
	buf := make([]byte, TimestampSize)
	ts.Encode(buf)

	assert.Equal(t, ts, DecodeTimestamp(buf))
	assert.Equal(t, uint32(123456789), ne.Uint32(buf[12:]), "fraction sits at offset 12")
}

func TestDateTimeLayout(t *testing.T) {
	d := DateStruct{Year: 2024, Month: 2, Day: 29}
	buf := make([]byte, DateSize)
	d.Encode(buf)
	assert.Equal(t, d, DecodeDate(buf))

	tm := TimeStruct{Hour: 7, Minute: 5, Second: 3}
	tm.Encode(buf)
	assert.Equal(t, tm, DecodeTime(buf))
}

func TestNumericLayout(t *testing.T) {
	n := NumericStruct{Precision: 10, Scale: 2, Sign: SignPositive}
	n.Val[0] = 0x39 // 12345 = 0x3039
	n.Val[1] = 0x30
	buf := make([]byte, NumericSize)
	n.Encode(buf)

	got := DecodeNumeric(buf)
	assert.Equal(t, n, got)
	assert.False(t, got.Negative())

	tests := []struct {
		sign byte
		neg  bool
	}{
		{SignNegative, true},
		{SignPositive, false},
		{SignNegativeLegacy, true},
	}
	for _, tt := range tests {
		n.Sign = tt.sign
		assert.Equal(t, tt.neg, n.Negative(), "sign %d", tt.sign)
	}
}

func TestGUIDLayout(t *testing.T) {
	raw := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 1, 2, 3, 4, 5, 6, 7, 8}
	g := GUIDFromBytes(raw)
	assert.Equal(t, uint32(0x12345678), g.Data1)
	assert.Equal(t, uint16(0x9abc), g.Data2)

	buf := make([]byte, GUIDSize)
	g.Encode(buf)
	assert.Equal(t, raw, DecodeGUID(buf).Bytes())
}

func TestIntegerCells(t *testing.T) {
	tests := []struct {
		width int
		val   int64
	}{
		{1, -5},
		{2, -300},
		{4, -70000},
		{8, -1 << 40},
	}
	for _, tt := range tests {
		buf := make([]byte, 8)
		PutUint(buf, tt.width, uint64(tt.val))
		assert.Equal(t, tt.val, GetInt(buf, tt.width), "width %d", tt.width)
	}

	buf := make([]byte, 2)
	PutUint(buf, 2, 65535)
	assert.Equal(t, uint64(65535), GetUint(buf, 2))
}

func TestCTypeWidth(t *testing.T) {
	w, ok := CTypeWidth(CTimestamp)
	require.True(t, ok)
	assert.Equal(t, TimestampSize, w)

	_, ok = CTypeWidth(CChar)
	assert.False(t, ok)
}

func TestDataAtExecIndicator(t *testing.T) {
	assert.True(t, IsDataAtExec(DataAtExec))
	assert.True(t, IsDataAtExec(LenDataAtExec(0)))
	assert.True(t, IsDataAtExec(LenDataAtExec(4096)))
	assert.False(t, IsDataAtExec(NullData))
	assert.False(t, IsDataAtExec(12))
}
