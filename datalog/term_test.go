package datalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTermEqual(t *testing.T) {
	require.True(t, Integer(42).Equal(Integer(42)))
	require.False(t, Integer(42).Equal(Integer(43)))
	require.False(t, Integer(42).Equal(String(42)))

	require.True(t, Bytes("abc").Equal(Bytes("abc")))
	require.False(t, Bytes("abc").Equal(Bytes("abcd")))

	a := Set{Integer(1), Integer(2)}
	b := Set{Integer(2), Integer(1)}
	require.True(t, a.Equal(b), "set equality must ignore order")

	c := Set{Integer(1), Integer(2), Integer(3)}
	require.False(t, a.Equal(c))
}

func TestDateString(t *testing.T) {
	d := Date(0)
	require.Equal(t, "1970-01-01T00:00:00Z", d.String())
}
