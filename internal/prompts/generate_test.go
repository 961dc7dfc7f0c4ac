package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `{
  "name": "Olena",
  "type": "personal_chat",
  "id": 42,
  "messages": [
    {"id": 1, "type": "service", "action": "phone_call", "from_id": "user42", "text": ""},
    {"id": 2, "type": "message", "from": "Olena", "from_id": "user42", "text": "Привіт!"},
    {"id": 3, "type": "message", "from": "Victor", "from_id": "user7", "text": ["see ", {"type": "link", "text": "https://example.com"}]},
    {"id": 4, "type": "message", "from": "Olena", "from_id": "user42", "photo": "photos/1.jpg", "text": ""},
    {"id": 5, "type": "message", "from": "Olena", "from_id": "user42", "text": "  ok  "}
  ]
}`

func TestReadTelegramExport(t *testing.T) {
	t.Parallel()

	export, err := ReadTelegramExport(strings.NewReader(sampleExport), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), export.PeerID)
	assert.Equal(t, "Olena", export.PeerName)
	assert.Equal(t, []ExportLine{
		{Outgoing: false, Text: "Привіт!"},
		{Outgoing: true, Text: "see https://example.com"},
		{Outgoing: false, Text: "ok"},
	}, export.Lines)

	last, err := ReadTelegramExport(strings.NewReader(sampleExport), 2)
	require.NoError(t, err)
	require.Len(t, last.Lines, 2)
	assert.Equal(t, "see https://example.com", last.Lines[0].Text)
}

func TestReadTelegramExportErrors(t *testing.T) {
	t.Parallel()

	_, err := ReadTelegramExport(strings.NewReader(`{"id": 1, "messages": []}`), 0)
	assert.ErrorIs(t, err, ErrEmptyExport)

	_, err = ReadTelegramExport(strings.NewReader(`{"messages": []}`), 0)
	assert.Error(t, err)

	_, err = ReadTelegramExport(strings.NewReader(`not json`), 0)
	assert.Error(t, err)
}

func TestGenerationRequest(t *testing.T) {
	t.Parallel()

	export := ChatExport{Lines: []ExportLine{
		{Text: "hi"},
		{Outgoing: true, Text: "hey there"},
	}}
	got := GenerationRequest("Victor", "", export)
	assert.Equal(t,
		"Analyze the following message history and write a system prompt in Ukrainian language for LLM impersonating real man Victor conversation with this user:\n\nUser: hi\nVictor: hey there",
		got)
	assert.True(t, strings.Contains(GenerationRequest("", "English", export), "in English language"))
}
