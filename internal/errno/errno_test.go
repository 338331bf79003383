package errno

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	e := New(EAGAIN, "would block")
	require.Equal(t, "EAGAIN: would block", e.Error())
}

func TestErrorMessageNoMsg(t *testing.T) {
	e := New(ETIMEDOUT, "")
	require.Equal(t, "ETIMEDOUT", e.Error())
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("underlying")
	e := Wrap(EIO, "read failed", cause)
	require.Contains(t, e.Error(), "underlying")
	require.ErrorIs(t, e, cause)
}

func TestIsMatchesByCodeOnly(t *testing.T) {
	a := New(EAGAIN, "first message")
	b := New(EAGAIN, "different message")
	c := New(EINVAL, "first message")
	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, c))
}

func TestOfExtractsCodeThroughWrap(t *testing.T) {
	inner := New(ECANCELED, "cancelled")
	outer := Wrap(EIO, "outer", inner)
	code, ok := Of(outer)
	require.True(t, ok)
	require.Equal(t, EIO, code)
}

func TestOfFalseForPlainError(t *testing.T) {
	_, ok := Of(errors.New("plain"))
	require.False(t, ok)
}

func TestCodeStringFallback(t *testing.T) {
	require.Equal(t, "errno(9999)", Code(9999).String())
}
