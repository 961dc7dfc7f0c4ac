// Package access decides which inbound messages the persona answers.
package access

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/memohai/mimic/internal/channel"
)

// Decision is the outcome of evaluating one message.
type Decision string

const (
	Allow        Decision = "allow"
	SkipOutgoing Decision = "outgoing"
	SkipBot      Decision = "bot"
	SkipExcluded Decision = "excluded"
	SkipGroup    Decision = "group_not_included"
	SkipChannel  Decision = "channel"
	SkipInvalid  Decision = "invalid_sender"
)

// Allowed reports whether the decision lets the message through.
func (d Decision) Allowed() bool { return d == Allow }

// Policy is a static allow/deny list.
type Policy struct {
	excludedIDs   map[int64]struct{}
	excludedNames map[string]struct{}
	groups        map[int64]struct{}
}

// Lists holds raw list entries.
type Lists struct {
	// ExcludedUsers holds numeric user ids or @usernames.
	ExcludedUsers []string
	// IncludedGroups holds numeric chat ids of groups the persona joins.
	IncludedGroups []string
}

// New builds a Policy from list entries.
func New(lists Lists) (*Policy, error) {
	p := &Policy{
		excludedIDs:   make(map[int64]struct{}),
		excludedNames: make(map[string]struct{}),
		groups:        make(map[int64]struct{}),
	}
	for _, entry := range lists.ExcludedUsers {
		if id, err := strconv.ParseInt(entry, 10, 64); err == nil {
			p.excludedIDs[id] = struct{}{}
			continue
		}
		name := normalizeUsername(entry)
		if name == "" {
			return nil, fmt.Errorf("invalid excluded user %q", entry)
		}
		p.excludedNames[name] = struct{}{}
	}
	for _, entry := range lists.IncludedGroups {
		id, err := strconv.ParseInt(entry, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid group id %q: %w", entry, err)
		}
		p.groups[id] = struct{}{}
	}
	return p, nil
}

// Load reads the excluded-users and included-groups files. An empty path
// means an empty list; a configured path that cannot be read is an error.
func Load(log *slog.Logger, excludedPath, includedPath string) (*Policy, error) {
	if log == nil {
		log = slog.Default()
	}
	excluded, err := readListFile(excludedPath)
	if err != nil {
		return nil, fmt.Errorf("excluded users: %w", err)
	}
	included, err := readListFile(includedPath)
	if err != nil {
		return nil, fmt.Errorf("included groups: %w", err)
	}
	p, err := New(Lists{ExcludedUsers: excluded, IncludedGroups: included})
	if err != nil {
		return nil, err
	}
	log.With(slog.String("component", "access")).Info("access lists loaded",
		slog.Int("excluded_users", len(excluded)),
		slog.Int("included_groups", len(included)),
	)
	return p, nil
}

func readListFile(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseList(f)
}

// ParseList reads one entry per line. Blank lines and lines starting with
// '#' are skipped; commas also separate entries.
func ParseList(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, field := range strings.Split(line, ",") {
			if field = strings.TrimSpace(field); field != "" {
				out = append(out, field)
			}
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return out, nil
}

// Evaluate applies the policy to msg.
func (p *Policy) Evaluate(msg channel.Message) Decision {
	if msg.Outgoing {
		return SkipOutgoing
	}
	if IsBotSender(msg.Sender) {
		return SkipBot
	}
	if msg.Sender.ID <= 0 {
		return SkipInvalid
	}
	if p.excluded(msg.Sender) {
		return SkipExcluded
	}
	switch {
	case msg.ChatType == channel.ChatChannel:
		return SkipChannel
	case msg.ChatType.IsGroup():
		if !p.GroupIncluded(msg.Conversation.ChatID) {
			return SkipGroup
		}
	case msg.Conversation.ChatID < 0:
		return SkipGroup
	}
	return Allow
}

// GroupIncluded reports whether the persona takes part in chatID.
func (p *Policy) GroupIncluded(chatID int64) bool {
	if p == nil {
		return false
	}
	_, ok := p.groups[chatID]
	return ok
}

func (p *Policy) excluded(sender channel.Identity) bool {
	if p == nil {
		return false
	}
	if _, ok := p.excludedIDs[sender.ID]; ok {
		return true
	}
	if name := normalizeUsername(sender.Username); name != "" {
		_, ok := p.excludedNames[name]
		return ok
	}
	return false
}

// IsBotSender reports bot accounts, including ones that only reveal
// themselves by the "_bot" username suffix.
func IsBotSender(sender channel.Identity) bool {
	if sender.IsBot {
		return true
	}
	return strings.HasSuffix(normalizeUsername(sender.Username), "_bot")
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}
