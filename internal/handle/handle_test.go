package handle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIssuesDistinctHandles(t *testing.T) {
	a := New()
	b := New()
	require.NotEqual(t, a, b)
	require.NotEqual(t, Zero, a)
}

func TestGeneratorStartsAtOneAndIncrements(t *testing.T) {
	var g Generator
	require.Equal(t, Handle(1), g.Next())
	require.Equal(t, Handle(2), g.Next())
	require.Equal(t, Handle(3), g.Next())
}

func TestGeneratorsAreIndependent(t *testing.T) {
	var g1, g2 Generator
	require.Equal(t, Handle(1), g1.Next())
	require.Equal(t, Handle(1), g2.Next())
}
