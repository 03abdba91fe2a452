package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []interface{}{
		42,
		int64(42),
		3.14,
		"hello",
		[]int64{1, 2, 3},
		[]float64{1.5, 2.5},
		[]string{"a", "b"},
	}
	for _, c := range cases {
		data, err := Marshal(c)
		require.NoError(t, err)
		got, err := Unmarshal(data)
		require.NoError(t, err)
		if v, ok := c.(int); ok {
			require.EqualValues(t, v, got)
			continue
		}
		require.Equal(t, c, got)
	}
}

func TestMarshalRejectsUnsupportedType(t *testing.T) {
	_, err := Marshal(struct{ X int }{1})
	require.Error(t, err)
}

func TestConcatScalarsIntoVector(t *testing.T) {
	parts := []Value{
		{Kind: KindInt, Int: 1},
		{Kind: KindInt, Int: 2},
		{Kind: KindInt, Int: 3},
	}
	out, err := Concat(parts)
	require.NoError(t, err)
	require.Equal(t, KindIntVector, out.Kind)
	require.Equal(t, []int64{1, 2, 3}, out.Ints)
}

func TestConcatVectorsFlattens(t *testing.T) {
	parts := []Value{
		{Kind: KindFloatVector, Floats: []float64{1, 2}},
		{Kind: KindFloatVector, Floats: []float64{3}},
	}
	out, err := Concat(parts)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3}, out.Floats)
}

func TestConcatRejectsMixedKinds(t *testing.T) {
	parts := []Value{
		{Kind: KindInt, Int: 1},
		{Kind: KindString, Str: "x"},
	}
	_, err := Concat(parts)
	require.Error(t, err)
}

func TestConcatRejectsEmpty(t *testing.T) {
	_, err := Concat(nil)
	require.Error(t, err)
}
