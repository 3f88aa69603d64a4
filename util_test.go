package recycle_test

import (
	"math"
	"testing"

	"github.com/memreuse/recycle"
	"github.com/stretchr/testify/require"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, recycle.CheckPow2(uint(8), "alignment"))
	require.ErrorIs(t, recycle.CheckPow2(uint(6), "alignment"), recycle.PowerOfTwoError)
}

func TestSaturatingMul(t *testing.T) {
	require.Equal(t, 200, recycle.SaturatingMul(100, 2))
	require.Equal(t, 0, recycle.SaturatingMul(0, 2))
	require.Equal(t, 0, recycle.SaturatingMul(100, 0))
	require.Equal(t, math.MaxInt, recycle.SaturatingMul(math.MaxInt, 2))
	require.Equal(t, math.MaxInt, recycle.SaturatingMul(math.MaxInt/2+1, 2))
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, 16, recycle.AlignUp(9, 8))
	require.Equal(t, 8, recycle.AlignUp(8, 8))
	require.Equal(t, 0, recycle.AlignUp(0, 8))
}
