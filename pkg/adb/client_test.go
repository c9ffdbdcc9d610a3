/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: client_test.go
Description: Tests for the adb client: argument builders, ToolError formatting and
wrapping, and real subprocess behaviour using small shell scripts in place of adb.
*/

package adb

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript writes an executable shell script standing in for adb
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "fake-adb")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestArgs(t *testing.T) {
	assert.Equal(t, []string{"devices"}, DevicesArgs())
	assert.Equal(t, []string{"-s", "emulator-5554", "shell", "getprop", PropModel}, GetpropArgs("emulator-5554", PropModel))
	assert.Equal(t, []string{"-s", "abc", "shell", "ps"}, PSArgs("abc"))
	assert.Equal(t, []string{"-s", "abc", "shell", "ps", "-A"}, PSArgs("abc", "-A"))
	assert.Equal(t, []string{"-s", "abc", "logcat", "-v", "threadtime"}, LogcatArgs("abc"))
}

func TestToolError(t *testing.T) {
	base := errors.New("exit status 1")
	err := &ToolError{Tool: "adb", Args: []string{"devices"}, Err: base, Stderr: "daemon not running\n"}

	assert.Equal(t, "adb devices: exit status 1: daemon not running", err.Error())
	assert.ErrorIs(t, err, base)

	wrapped := errors.Join(errors.New("listing"), err)
	assert.True(t, IsToolError(wrapped))
	assert.False(t, IsToolError(base))
}

func TestClientRun(t *testing.T) {
	script := writeScript(t, `echo "args: $*"`)
	client := NewClient(script, time.Second)

	out, err := client.Run(context.Background(), "devices")
	require.NoError(t, err)
	assert.Equal(t, "args: devices\n", string(out))
}

func TestClientRunFailure(t *testing.T) {
	script := writeScript(t, `echo "no devices/emulators found" >&2; exit 1`)
	client := NewClient(script, time.Second)

	_, err := client.Run(context.Background(), "shell", "ps")
	require.Error(t, err)

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, []string{"shell", "ps"}, te.Args)
	assert.Contains(t, te.Stderr, "no devices/emulators found")
}

func TestClientRunTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	client := NewClient(script, 100*time.Millisecond)

	start := time.Now()
	_, err := client.Run(context.Background(), "shell", "getprop", PropModel)
	require.Error(t, err)
	assert.True(t, IsToolError(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestClientMissingTool(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "does-not-exist"), time.Second)

	_, err := client.Run(context.Background(), "devices")
	assert.True(t, IsToolError(err))

	_, err = client.Stream(context.Background(), LogcatArgs("abc")...)
	assert.True(t, IsToolError(err))

	_, err = client.Available()
	assert.True(t, IsToolError(err))
}

func TestClientStream(t *testing.T) {
	script := writeScript(t, `echo one; echo two; echo oops >&2`)
	client := NewClient(script, 0)

	proc, err := client.Stream(context.Background(), LogcatArgs("abc")...)
	require.NoError(t, err)

	var lines []string
	scanner := bufio.NewScanner(proc.Stdout())
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, proc.Wait())
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestClientStreamCancel(t *testing.T) {
	script := writeScript(t, `echo ready; exec sleep 30`)
	client := NewClient(script, 0)

	ctx, cancel := context.WithCancel(context.Background())
	proc, err := client.Stream(ctx, LogcatArgs("abc")...)
	require.NoError(t, err)

	reader := bufio.NewReader(proc.Stdout())
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ready\n", line)

	cancel()

	done := make(chan error, 1)
	go func() {
		_, _ = reader.ReadString('\n')
		done <- proc.Wait()
	}()

	select {
	case err := <-done:
		assert.Error(t, err, "killed child should report a non-nil wait status")
	case <-time.After(5 * time.Second):
		t.Fatal("child was not reaped after cancellation")
	}
}
