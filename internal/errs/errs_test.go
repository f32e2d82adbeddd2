package errs

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNilStaysNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "load"))
	assert.NoError(t, Wrapf(nil, "load %s", "scan"))
}

func TestWrapfKeepsChain(t *testing.T) {
	err := Wrapf(io.EOF, "read job %s", "j1")
	require.Error(t, err)
	assert.Equal(t, "read job j1: EOF", err.Error())
	assert.ErrorIs(t, err, io.EOF)
}

func TestErrorChainStringsWalksJoinedErrors(t *testing.T) {
	first := errors.New("vision down")
	second := errors.New("store busy")
	err := Wrap(errors.Join(first, second), "process job")

	chain := ErrorChainStrings(err)
	require.Len(t, chain, 4)
	assert.Equal(t, "vision down", chain[2])
	assert.Equal(t, "store busy", chain[3])
}

func TestRecoveredCapturesStack(t *testing.T) {
	var err error
	func() {
		defer func() { err = Recovered(recover()) }()
		panic("boom")
	}()

	require.Error(t, err)
	assert.Equal(t, "panic: boom", err.Error())
	var se *StackError
	require.True(t, errors.As(err, &se))
	assert.True(t, strings.Contains(string(se.Stack()), "TestRecoveredCapturesStack"))
}

func TestRecoveredKeepsErrorPanics(t *testing.T) {
	err := Recovered(io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NoError(t, Recovered(nil))
}

func TestLoggableIncludesStackOnlyWhenPresent(t *testing.T) {
	plain := Loggable(errors.New("plain")).LogValue()
	assert.Len(t, plain.Group(), 2)

	withStack := Loggable(Recovered("boom")).LogValue()
	keys := make([]string, 0, 3)
	for _, attr := range withStack.Group() {
		keys = append(keys, attr.Key)
	}
	assert.Equal(t, []string{"message", "chain", "stack"}, keys)

	assert.Equal(t, slog.KindGroup, Loggable(nil).LogValue().Kind())
}
