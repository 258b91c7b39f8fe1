package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlePanic_WritesLog(t *testing.T) {
	var (
		written  []byte
		exitCode = -1
	)
	osWriteFile = func(name string, data []byte, perm os.FileMode) error {
		assert.Equal(t, panicLogFile, name)
		written = data
		return nil
	}
	osExit = func(code int) { exitCode = code }
	t.Cleanup(func() {
		osWriteFile = os.WriteFile
		osExit = os.Exit
	})

	func() {
		defer handlePanic()
		panic("boom")
	}()

	require.NotNil(t, written)
	assert.Contains(t, string(written), "panic: boom")
	assert.Equal(t, 1, exitCode)
}

func TestHandlePanic_NoPanic(t *testing.T) {
	called := false
	osExit = func(int) { called = true }
	t.Cleanup(func() { osExit = os.Exit })

	func() {
		defer handlePanic()
	}()
	assert.False(t, called)
}
