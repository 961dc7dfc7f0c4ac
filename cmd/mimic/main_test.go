package main

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

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/mimic/internal/config"
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "mimic dev"), out.String())
}

func TestGeneratePromptSavesUserPrompt(t *testing.T) {
	t.Parallel()

	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Messages, 1) {
			prompt = body.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Ти Віктор.  "}}]}`))
	}))
	defer srv.Close()

	root := t.TempDir()
	systemDir := filepath.Join(root, "system")
	require.NoError(t, os.MkdirAll(systemDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(systemDir, "victor.txt"), []byte("You are Victor."), 0o644))
	exportPath := filepath.Join(root, "result.json")
	require.NoError(t, os.WriteFile(exportPath, []byte(`{"id":42,"name":"Olena","messages":[
		{"type":"message","from_id":"user42","text":"hi"},
		{"type":"message","from_id":"user7","text":"hello"}
	]}`), 0o644))

	cfg := config.Config{
		Instance: "victor",
		Model: config.ModelConfig{
			Provider:  config.ProviderOpenAI,
			OpenAI:    config.ProviderConfig{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "gpt-4o"},
			MaxTokens: 16,
		},
		Prompts: config.PromptsConfig{
			SystemDir:  systemDir,
			PromptsDir: filepath.Join(root, "prompts"),
			Persona:    "Victor",
		},
	}
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runGeneratePrompt(context.Background(), cmd, cfg, &generatePromptOptions{exportPath: exportPath, limit: 200, maxTokens: 64})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(prompt, "\n\nUser: hi\nVictor: hello"), prompt)
	saved, err := os.ReadFile(filepath.Join(root, "prompts", "victor", "42.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Ти Віктор.", strings.TrimSpace(string(saved)))
	assert.Contains(t, out.String(), "Prompt saved to")
}
