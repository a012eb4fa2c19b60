package bridgeerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	err := New(ErrorTypeConfig, "cluster id is required")

	assert.Equal(t, ErrorTypeConfig, err.Type)
	assert.Equal(t, "cluster id is required", err.Message)
	assert.Equal(t, "config: cluster id is required", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrorTypeTransport, "write request failed")

	assert.Equal(t, ErrorTypeTransport, err.Type)
	assert.Equal(t, "transport: write request failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeTransport, "ignored"))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeNotFound, "database not found").
		WithDetail("database", "metrics")

	assert.Equal(t, "metrics", err.Details["database"])
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeConflict, "database already exists")
	wrapped := fmt.Errorf("creating database: %w", err)

	assert.True(t, IsType(wrapped, ErrorTypeConflict))
	assert.False(t, IsType(wrapped, ErrorTypeNotFound))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeConflict))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeCapability, TypeOf(New(ErrorTypeCapability, "no data token")))
	assert.Equal(t, ErrorTypeTransport, TypeOf(errors.New("plain")))
}

func TestFromStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected ErrorType
	}{
		{"bad request", 400, ErrorTypeInvalidArgument},
		{"unprocessable entity", 422, ErrorTypeInvalidArgument},
		{"unauthorized", 401, ErrorTypeUnauthorized},
		{"forbidden", 403, ErrorTypeForbidden},
		{"not found", 404, ErrorTypeNotFound},
		{"method not allowed", 405, ErrorTypeUnsupported},
		{"conflict", 409, ErrorTypeConflict},
		{"payload too large", 413, ErrorTypePayloadTooLarge},
		{"teapot falls through to transport", 418, ErrorTypeTransport},
		{"server error falls through to transport", 500, ErrorTypeTransport},
		{"bad gateway falls through to transport", 502, ErrorTypeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(tt.status, nil, "request failed")
			assert.Equal(t, tt.expected, err.Type)
			assert.Equal(t, tt.status, err.Details["status"])
		})
	}
}

func TestFromStatusMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		expected string
	}{
		{"error key", []byte(`{"error":"database not found"}`), "database not found"},
		{"message key", []byte(`{"message":"invalid token"}`), "invalid token"},
		{"error preferred over message", []byte(`{"error":"a","message":"b"}`), "a"},
		{"plain text body", []byte("  upstream timeout \n"), "upstream timeout"},
		{"empty body uses fallback", nil, "request failed"},
		{"json without known keys uses fallback", []byte(`{"code":9}`), "request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(404, tt.body, "request failed")
			assert.Equal(t, tt.expected, err.Message)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Normalize(nil))
	})

	t.Run("taxonomy error passes through unchanged", func(t *testing.T) {
		orig := New(ErrorTypeForbidden, "token lacks write permission")
		require.Same(t, orig, Normalize(orig))
	})

	t.Run("plain error becomes transport", func(t *testing.T) {
		err := Normalize(errors.New("dial tcp: connection refused"))
		assert.Equal(t, ErrorTypeTransport, err.Type)
		assert.Contains(t, err.Error(), "connection refused")
	})
}
