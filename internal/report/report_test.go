package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Norgate-AV/gebc/internal/cache"
	"github.com/Norgate-AV/gebc/internal/history"
)

func sampleView() CacheView {
	built := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

	return NewCacheView("Alpha", cache.Verdict{
		State:   cache.StateValid,
		Stored:  "abc123",
		Current: "abc123",
		Record: &cache.Record{
			LastBuildTime: built,
			Manifest:      cache.Manifest{ProjectName: "Alpha", Dependencies: []string{"glfw", "raylib"}},
		},
	}, map[string]string{"src/main.cpp": "ffee"})
}

func TestEncode(t *testing.T) {
	view := sampleView()

	tests := []struct {
		format    string
		unmarshal func([]byte, any) error
	}{
		{FormatJSON, json.Unmarshal},
		{FormatYAML, yaml.Unmarshal},
		{FormatTOML, toml.Unmarshal},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, tt.format, view))

			var got CacheView
			require.NoError(t, tt.unmarshal(buf.Bytes(), &got))
			assert.Equal(t, view, got)
		})
	}
}

func TestEncode_FieldNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, "yaml", sampleView()))

	out := buf.String()
	assert.Contains(t, out, "stored_hash: abc123")
	assert.Contains(t, out, "last_build_time:")
	assert.Contains(t, out, "2026-10-15T09:30:00Z")
	assert.NotContains(t, out, "hash_error", "empty fields are omitted")
}

func TestEncode_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, "xml", sampleView())
	assert.True(t, errors.Is(err, ErrUnknownFormat))
	assert.Zero(t, buf.Len())
}

func TestNewCacheView_Absent(t *testing.T) {
	view := NewCacheView("Beta", cache.Verdict{State: cache.StateAbsent}, nil)

	assert.Equal(t, "absent", view.State)
	assert.Empty(t, view.LastBuildTime)
	assert.Empty(t, view.StoredHash)
}

func TestNewCacheView_HashError(t *testing.T) {
	view := NewCacheView("Alpha", cache.Verdict{State: cache.StateInvalid, HashErr: errors.New("permission denied")}, nil)
	assert.Equal(t, "permission denied", view.HashError)
}

func TestNewHistoryView(t *testing.T) {
	records := []history.Record{
		{ID: "b", Mode: "INCREMENTAL", Success: true, Duration: 1500 * time.Millisecond},
		{ID: "a", Mode: "FULL", Success: false, Error: "linker error"},
	}

	view := NewHistoryView(records)
	require.Len(t, view.Builds, 2)
	assert.Equal(t, "1.5s", view.Builds[0].Duration)
	assert.Equal(t, "linker error", view.Builds[1].Error)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatTOML, view))
	assert.Equal(t, 2, strings.Count(buf.String(), "[[builds]]"))

	empty := NewHistoryView(nil)
	buf.Reset()
	require.NoError(t, Encode(&buf, FormatJSON, empty))
	assert.Contains(t, buf.String(), `"builds": []`)
}

func TestBadges(t *testing.T) {
	for _, mode := range []string{"FULL", "FAST", "INCREMENTAL", "OTHER"} {
		assert.Contains(t, ModeBadge(mode), mode)
	}

	for _, state := range []string{"valid", "invalid", "absent"} {
		assert.Contains(t, StateBadge(state), state)
	}

	assert.Contains(t, ResultBadge(true), "ok")
	assert.Contains(t, ResultBadge(false), "failed")
	assert.Contains(t, ShortHash("0123456789abcdef"), "0123456789ab")
	assert.NotContains(t, ShortHash("0123456789abcdef"), "cdef")
	assert.Contains(t, ShortHash(""), "-")
}
