package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// inputPlaceholder in a transcription command is replaced by the audio path.
const inputPlaceholder = "{input}"

// OpenAITranscriber uses an OpenAI-compatible audio transcription endpoint.
type OpenAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAITranscriber creates a transcriber for the audio API.
func NewOpenAITranscriber(opts ProviderOptions, language string) (*OpenAITranscriber, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("transcription api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = openai.Whisper1
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAITranscriber{
		client:   newOpenAIClient(opts),
		model:    opts.Model,
		language: strings.TrimSpace(language),
	}, nil
}

func (t *OpenAITranscriber) Name() string  { return "openai" }
func (t *OpenAITranscriber) Model() string { return t.model }

// TranscribeFile uploads the audio file and returns the transcript.
func (t *OpenAITranscriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
		Language: t.language,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CommandTranscriber runs a local speech-to-text executable that prints the
// transcript on stdout.
type CommandTranscriber struct {
	argv []string
}

// NewCommandTranscriber creates a transcriber from argv. The audio path
// replaces every "{input}" argument, or is appended when none is present.
func NewCommandTranscriber(argv []string) (*CommandTranscriber, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("transcription command is required")
	}
	return &CommandTranscriber{argv: append([]string(nil), argv...)}, nil
}

func (t *CommandTranscriber) Name() string  { return "command" }
func (t *CommandTranscriber) Model() string { return t.argv[0] }

// TranscribeFile runs the command on path.
func (t *CommandTranscriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	args := make([]string, 0, len(t.argv))
	substituted := false
	for _, arg := range t.argv[1:] {
		if strings.Contains(arg, inputPlaceholder) {
			arg = strings.ReplaceAll(arg, inputPlaceholder, path)
			substituted = true
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, path)
	}
	cmd := exec.CommandContext(ctx, t.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not found", ErrTranscriptionUnavailable, t.argv[0])
		}
		return "", fmt.Errorf("run %s: %w: %s", t.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
