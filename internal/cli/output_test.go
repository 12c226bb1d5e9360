package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(SyncReport{Uploaded: 3}, func(io.Writer) error {
		t.Fatal("text renderer called in json mode")
		return nil
	})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"uploaded": 3.0, "downloaded": 0.0}, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Success(nil, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "done")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "done\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	exitErr := WrapExitError(ExitFailure, "sync failed", errors.New("boom"))
	err := formatter.Error(exitErr, SyncReport{Uploaded: 4}, nil)
	assert.Same(t, exitErr, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ExitFailure, resp.Error.Code)
	assert.Equal(t, "sync failed: boom", resp.Error.Message)
	assert.Equal(t, map[string]any{"uploaded": 4.0, "downloaded": 0.0}, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	exitErr := NewExitError(ExitCommandError, "bad config")
	err := formatter.Error(exitErr, nil, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "partial")
		return err
	})
	assert.Same(t, exitErr, err)
	assert.Equal(t, "partial\n", buf.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitStaleKey, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitStaleKey, "x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestExitErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := WrapExitError(ExitFailure, "outer", inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "outer: inner", err.Error())
	assert.Equal(t, "outer", NewExitError(ExitFailure, "outer").Error())
}
