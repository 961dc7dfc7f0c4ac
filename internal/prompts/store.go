// Package prompts resolves the persona's system prompt and augments it with
// the current date, time and weather.
package prompts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrSystemPromptMissing is returned when the instance prompt cannot be read.
var ErrSystemPromptMissing = errors.New("system prompt missing")

// StoreOptions locates prompt files.
type StoreOptions struct {
	// SystemDir holds <instance>.txt, the general persona prompt.
	SystemDir string
	// PromptsDir holds <instance>/<user id>.txt custom prompts.
	PromptsDir string
	Instance   string
}

// Store serves the general prompt and per-user overrides.
type Store struct {
	logger     *slog.Logger
	promptsDir string
	instance   string
	general    string
}

// NewStore reads the instance prompt. A missing or empty file is fatal.
func NewStore(log *slog.Logger, opts StoreOptions) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	instance := strings.TrimSpace(opts.Instance)
	if instance == "" {
		return nil, fmt.Errorf("%w: instance name is empty", ErrSystemPromptMissing)
	}
	path := filepath.Join(opts.SystemDir, instance+".txt")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemPromptMissing, err)
	}
	general := strings.TrimSpace(string(raw))
	if general == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrSystemPromptMissing, path)
	}
	return &Store{
		logger:     log.With(slog.String("component", "prompts")),
		promptsDir: opts.PromptsDir,
		instance:   instance,
		general:    general,
	}, nil
}

// General returns the instance prompt.
func (s *Store) General() string {
	return s.general
}

// UserPromptPath returns where the custom prompt for id lives.
func (s *Store) UserPromptPath(id int64) string {
	return filepath.Join(s.promptsDir, s.instance, strconv.FormatInt(id, 10)+".txt")
}

// ForConversation returns the custom prompt for id when one exists, else the
// general prompt introducing the other person by name. Custom prompts are
// read on every call so edits apply without a restart.
func (s *Store) ForConversation(id int64, name string) string {
	path := s.UserPromptPath(id)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if custom := strings.TrimSpace(string(raw)); custom != "" {
			s.logger.Debug("using custom prompt", slog.Int64("id", id))
			return custom
		}
	case !errors.Is(err, os.ErrNotExist):
		s.logger.Warn("custom prompt unreadable", slog.String("path", path), slog.Any("error", err))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s.general
	}
	return s.general + "\nThe other person's name is " + name + "."
}

// SaveUserPrompt writes a custom prompt for id and returns its path.
func (s *Store) SaveUserPrompt(id int64, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("prompt is empty")
	}
	path := s.UserPromptPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
