package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvaholic/rally/internal/config"
)

// runCLI executes rally with args and returns what it wrote to stdout
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	// Flag variables outlive a single Execute
	outputFormat = "json"
	normalizeKind, normalizeList = "", false
	fetchChats, fetchConcurrency = nil, 4
	selectChat, selectSender, selectSearch, selectSince, selectUntil = "", "", "", "", ""
	selectLimit, selectOffset = 100, 0

	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })

	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{config.EnvBaseURL, config.EnvToken, config.EnvTimeout,
		config.EnvStreamURL, config.EnvUserID, config.EnvLogLevel} {
		t.Setenv(key, "")
	}
	return home
}

func TestNormalizeCommand(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, `{"data":{"_id":"m1","text":"hi","sender":"me","chatId":"c1"}}`,
		"normalize", "--kind", "message")
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &msg))
	assert.Equal(t, "m1", msg["id"])
	assert.Equal(t, "hi", msg["content"])
	assert.Equal(t, "me", msg["sender"])
	assert.Equal(t, "c1", msg["chatId"])
}

func TestNormalizeCommandList(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "activities.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"activities":[{"_id":"a1"},{"id":"a2"}]}`), 0600))

	out, err := runCLI(t, "", "normalize", "--kind", "activity", "--list", "--format", "jsonl", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"a1"`)
	assert.Contains(t, lines[1], `"id":"a2"`)
}

func TestNormalizeCommandErrors(t *testing.T) {
	isolate(t)

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"unknown kind", `{}`, []string{"normalize", "--kind", "team"}, "unknown kind"},
		{"array for one record", `[{"_id":"m1"}]`, []string{"normalize", "--kind", "message"}, "cannot decode message"},
		{"list needs array", `{"_id":"c1"}`, []string{"normalize", "--kind", "chat", "--list"}, "array"},
		{"user list", `[]`, []string{"normalize", "--kind", "user", "--list"}, "not supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFetchAndSelect(t *testing.T) {
	home := isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chats":
			w.Write([]byte(`{"chats":[{"_id":"c1","participants":[{"_id":"u1","name":"Ann"},"u2"]}]}`))
		case "/api/chats/c1/messages":
			w.Write([]byte(`{"data":[
				{"_id":"m1","content":"first","sender":"u1","createdAt":"2026-03-01T10:00:00Z"},
				{"_id":"m2","text":"second","sender":"me","createdAt":"2026-03-01T11:00:00Z"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Setenv(config.EnvBaseURL, srv.URL+"/api")
	dbFile := filepath.Join(t.TempDir(), "rally.db")

	_, err := runCLI(t, "", "fetch", "messages", "--db", dbFile)
	require.Error(t, err, "no chats stored yet")
	assert.Contains(t, err.Error(), "no chats")

	out, err := runCLI(t, "", "fetch", "chats", "--db", dbFile, "-f", "jsonl")
	require.NoError(t, err)
	assert.Contains(t, out, `"_id":"c1"`)

	out, err = runCLI(t, "", "fetch", "messages", "--db", dbFile, "-f", "jsonl")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	_, err = os.Stat(filepath.Join(home, ".rally", "raw", "messages", "c1.json"))
	assert.NoError(t, err, "raw response is cached")

	out, err = runCLI(t, "", "select", "messages", "--db", dbFile, "--chat", "c1")
	require.NoError(t, err)

	var msgs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0]["id"], "newest first")
	assert.Equal(t, "second", msgs[0]["content"])
	assert.Equal(t, "c1", msgs[1]["chatId"])

	out, err = runCLI(t, "", "select", "messages", "--db", dbFile, "--search", "first", "-f", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "TIMESTAMP")
	assert.Contains(t, out, "first")
	assert.NotContains(t, out, "second")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "line one", truncate("line\none", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééé...", truncate("éééééééé", 6))
}
