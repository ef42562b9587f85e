package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	values := []IRValue{IRNull{}, IRString("s"), IRInt(1), IRDecimal("1.5"), IRBool(true), IRArray{}, IRObject{}}
	assert.Len(t, values, 7)
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{"command": IRString("hire"), "clientMutationId": IRString("m-1"), "a": IRInt(1)}
	assert.Equal(t, []string{"a", "clientMutationId", "command"}, obj.SortedKeys())
}

func TestCompareKeysRFC8785(t *testing.T) {
	assert.Equal(t, 0, compareKeysRFC8785("a", "a"))
	assert.Equal(t, -1, compareKeysRFC8785("a", "b"))
	assert.Equal(t, 1, compareKeysRFC8785("b", "a"))
	assert.Equal(t, -1, compareKeysRFC8785("a", "ab"))
	assert.Equal(t, -1, compareKeysRFC8785("\U00010000", "\uE000"))
}

func TestUnmarshalKeepsDecimals(t *testing.T) {
	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(`{"fundingAmountUsd": 250.75, "chainId": 42161, "note": null}`), &obj))

	assert.Equal(t, IRDecimal("250.75"), obj["fundingAmountUsd"])
	assert.Equal(t, IRInt(42161), obj["chainId"])
	assert.Equal(t, IRNull{}, obj["note"])

	amount, ok := obj.Number("fundingAmountUsd")
	require.True(t, ok)
	assert.InDelta(t, 250.75, amount, 1e-9)

	chain, ok := obj.Number("chainId")
	require.True(t, ok)
	assert.Equal(t, 42161.0, chain)

	_, ok = obj.Number("note")
	assert.False(t, ok)
}

func TestUnmarshalIRValueRejectsNull(t *testing.T) {
	_, err := UnmarshalIRValue([]byte(`null`))
	assert.Error(t, err)

	_, err = UnmarshalIRValue([]byte(`{"a": [1, null]}`))
	assert.Error(t, err)

	v, err := UnmarshalIRValue([]byte(`{"a": [1, 2.5, "x"]}`))
	require.NoError(t, err)
	assert.Equal(t, IRObject{"a": IRArray{IRInt(1), IRDecimal("2.5"), IRString("x")}}, v)
}

func TestNewIRDecimalRejectsNonFinite(t *testing.T) {
	_, err := NewIRDecimal(math.NaN())
	assert.Error(t, err)
	_, err = NewIRDecimal(math.Inf(1))
	assert.Error(t, err)

	d, err := NewIRDecimal(40)
	require.NoError(t, err)
	assert.Equal(t, IRDecimal("40"), d)
}

func TestMarshalIRValueRoundTrip(t *testing.T) {
	obj := IRObject{
		"command":          IRString("hire"),
		"fundingAmountUsd": IRDecimal("100.5"),
		"flags":            IRArray{IRBool(true), IRNull{}},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"command":"hire","flags":[true,null],"fundingAmountUsd":100.5}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestIRObjectHelpers(t *testing.T) {
	obj := O("command", IRString("cycle"), "clientMutationId", IRString("m-9"), "n", IRInt(3))

	s, ok := obj.String("command")
	assert.True(t, ok)
	assert.Equal(t, "cycle", s)

	_, ok = obj.String("n")
	assert.False(t, ok)

	rest := obj.Without("command", "clientMutationId")
	assert.Equal(t, IRObject{"n": IRInt(3)}, rest)
	assert.Len(t, obj, 3, "Without must not mutate the receiver")
}
