package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"booruscraper/pkg/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug json", &config.LoggingConfig{Level: "debug", Format: "json"}, false},
		{"invalid level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestJSONOutputWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	l.WithField("tag", "touhou").Info("crawl started")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{"), "expected JSON line, got %q", out)
	assert.Contains(t, out, `"app":"booruscraper"`)
	assert.Contains(t, out, `"tag":"touhou"`)
}

func TestConsoleFormatForced(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "info", Format: "console"}, &buf)
	require.NoError(t, err)

	l.Info("hello")
	assert.Contains(t, buf.String(), "| hello")
}

func TestFileOutputReceivesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "info", File: path}, &buf)
	require.NoError(t, err)

	l.Warn("disk almost full")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"disk almost full"`)
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	child := l.WithField("tag", "a").WithFields(map[string]interface{}{"page": 4})
	child.InfoWithFields("page done", map[string]interface{}{"accepted": 2})
	l.Info("parent untouched")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"tag":"a"`)
	assert.Contains(t, lines[0], `"page":4`)
	assert.Contains(t, lines[0], `"accepted":2`)
	assert.NotContains(t, lines[1], `"tag"`)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	assert.Same(t, l, l.WithError(nil))

	l.WithError(errors.New("connection reset")).Error("fetch failed")
	assert.Contains(t, buf.String(), `"error":"connection reset"`)
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.InfoWithFields("types", map[string]interface{}{
		"int64":    int64(5),
		"float":    1.5,
		"bool":     true,
		"duration": 2 * time.Second,
		"strings":  []string{"x", "y"},
		"cause":    errors.New("boom"),
		"custom":   struct{ N int }{N: 1},
	})

	out := buf.String()
	assert.Contains(t, out, `"int64":5`)
	assert.Contains(t, out, `"strings":["x","y"]`)
	assert.Contains(t, out, `"cause":"boom"`)
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug", Format: "json"}))
	assert.NotNil(t, GetLogger())

	tl := NewTestLogger()
	SetLogger(tl)
	defer SetLogger(nil)

	LogComponentStart(GetLogger(), "fetcher", map[string]interface{}{"backend": "rod"})
	LogComponentStop(GetLogger(), "fetcher", "done")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "rod", msgs[0].Fields["backend"])
	assert.Equal(t, "done", msgs[1].Fields["reason"])
}

func TestTestLoggerSharesCapture(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("tag", "x").WithError(errors.New("bad")).Warn("retrying")
	tl.Info("ok")

	assert.True(t, tl.HasMessage("retry"))
	assert.Equal(t, 1, tl.Count("retrying"))
	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "x", warns[0].Fields["tag"])
	assert.EqualError(t, warns[0].Error, "bad")
}
