package analysis

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestExtractServiceName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"key value", "level=error service=payment-api msg=timeout", "payment-api"},
		{"service_name key", `service_name: "Orders" failed`, "orders"},
		{"bracket tag", "2024-01-01 [ERROR] [checkout] card declined", "checkout"},
		{"angle tag", "<inventory> stock sync failed", "inventory"},
		{"keyword with prefix", "payment api returned 500", "payment-api"},
		{"keyword alone", "cache miss storm", "cache"},
		{"unknown", "something broke", UnknownService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractServiceName(tt.input))
		})
	}
}

func TestExtractLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected models.ErrorLevel
	}{
		{"CRITICAL: disk full", models.LevelFatal},
		{"panic: nil map", models.LevelFatal},
		{"ERROR with a WARN inside", models.LevelError},
		{"Unhandled exception in worker", models.LevelError},
		{"WARNING: slow query", models.LevelWarn},
		{"DEBUG cache state", models.LevelDebug},
		{"INFO started", models.LevelInfo},
		{"connection refused", models.LevelUnknown},
		{"stderr output only", models.LevelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractLevel(tt.input))
		})
	}
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips date level and tag", "2024-01-15T10:30:00Z ERROR [db] connection refused", "connection refused"},
		{"strips clock prefix", "10:30:00 WARN: pool nearly exhausted", "pool nearly exhausted"},
		{"first non-empty line", "\n\nERROR first line\nsecond line", "first line"},
		{"no prefix", "plain message", "plain message"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractMessage(tt.input))
		})
	}
}

func TestExtractMessage_Caps(t *testing.T) {
	long := strings.Repeat("x", MaxMessageLength+50)
	got := ExtractMessage(long)
	assert.Equal(t, MaxMessageLength+3, len(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}
