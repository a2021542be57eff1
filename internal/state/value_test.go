package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	assert.Equal(t, String(""), Default(String("x")))
	assert.Equal(t, Bool(false), Default(Bool(true)))
	assert.Equal(t, Number(0), Default(Number(42)))
	assert.Equal(t, String(""), Default(nil))
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want bool
	}{
		{"empty string", String(""), false},
		{"non-empty string", String("0"), true},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero", Number(0), false},
		{"negative", Number(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AsBool(tt.in))
		})
	}
}

func TestAsNumber(t *testing.T) {
	assert.Equal(t, 3.5, AsNumber(String("3.5")))
	assert.Equal(t, 0.0, AsNumber(String("abc")))
	assert.Equal(t, 1.0, AsNumber(Bool(true)))
	assert.Equal(t, 0.0, AsNumber(Bool(false)))
	assert.Equal(t, -2.0, AsNumber(Number(-2)))
}

func TestEqual_VariantSensitive(t *testing.T) {
	assert.True(t, Equal(String("1"), String("1")))
	assert.True(t, Equal(Number(1), Number(1)))
	assert.True(t, Equal(Bool(true), Bool(true)))

	assert.False(t, Equal(String("1"), Number(1)))
	assert.False(t, Equal(Bool(true), Number(1)))
	assert.False(t, Equal(String("true"), Bool(true)))
	assert.False(t, Equal(Number(1), nil))
}

func TestString(t *testing.T) {
	assert.Equal(t, "hello", String("hello").String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "1.5", Number(1.5).String())
	assert.Equal(t, "-1", Number(-1).String())
}

func TestFromAny(t *testing.T) {
	v, err := FromAny("on")
	require.NoError(t, err)
	assert.Equal(t, String("on"), v)

	v, err = FromAny(7)
	require.NoError(t, err)
	assert.Equal(t, Number(7), v)

	v, err = FromAny(uint8(3))
	require.NoError(t, err)
	assert.Equal(t, Number(3), v)

	v, err = FromAny(json.Number("2.25"))
	require.NoError(t, err)
	assert.Equal(t, Number(2.25), v)

	v, err = FromAny(Bool(true))
	require.NoError(t, err)
	assert.Equal(t, Bool(true), v)

	_, err = FromAny([]string{"x"})
	assert.Error(t, err)

	_, err = FromAny(nil)
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON([]byte(`"abc"`))
	require.NoError(t, err)
	assert.Equal(t, String("abc"), v)

	v, err = DecodeJSON([]byte(`false`))
	require.NoError(t, err)
	assert.Equal(t, Bool(false), v)

	v, err = DecodeJSON([]byte(`12.5`))
	require.NoError(t, err)
	assert.Equal(t, Number(12.5), v)

	for _, bad := range []string{`{}`, `[1]`, `null`, ``} {
		_, err := DecodeJSON([]byte(bad))
		assert.Error(t, err, "input %q", bad)
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "string", Kind(String("")))
	assert.Equal(t, "bool", Kind(Bool(false)))
	assert.Equal(t, "number", Kind(Number(0)))
	assert.Equal(t, "invalid", Kind(nil))
}
