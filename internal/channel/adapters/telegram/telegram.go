package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/mimic/internal/channel"
	"github.com/memohai/mimic/internal/media"
)

const (
	telegramMaxMessageLength = 4096
	pollRetryDelay           = 3 * time.Second
)

// Options configures the Telegram adapter.
type Options struct {
	BotToken        string
	PollTimeout     int
	HistoryCapacity int
	// APIEndpoint and FileEndpoint are format strings taking the token and
	// the method (or file path). Empty means the public Bot API.
	APIEndpoint  string
	FileEndpoint string
	HTTPClient   *http.Client
}

// TelegramAdapter implements channel.Transport and channel.Receiver over
// the Bot API long-polling interface.
type TelegramAdapter struct {
	logger  *slog.Logger
	opts    Options
	history *channel.HistoryBuffer
	conn    *channel.ConnectionTracker

	mu  sync.RWMutex
	bot *tgbotapi.BotAPI

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger, opts Options) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(opts.APIEndpoint) == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if strings.TrimSpace(opts.FileEndpoint) == "" {
		opts.FileEndpoint = tgbotapi.FileEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.PollTimeout < 0 {
		opts.PollTimeout = 0
	}
	adapter := &TelegramAdapter{
		logger:  log.With(slog.String("adapter", "telegram")),
		opts:    opts,
		history: channel.NewHistoryBuffer(opts.HistoryCapacity),
		conn:    channel.NewConnectionTracker("telegram"),
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

func (a *TelegramAdapter) getOrCreateBot() (*tgbotapi.BotAPI, error) {
	a.mu.RLock()
	bot := a.bot
	a.mu.RUnlock()
	if bot != nil {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	token := strings.TrimSpace(a.opts.BotToken)
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, a.opts.APIEndpoint, a.opts.HTTPClient)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		a.conn.Mark(false, err)
		return nil, err
	}
	a.bot = bot
	a.conn.SetAccount(bot.Self.UserName)
	return bot, nil
}

// Self returns the identity of the bot account.
func (a *TelegramAdapter) Self() channel.Identity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.bot == nil {
		return channel.Identity{}
	}
	return convertUser(&a.bot.Self)
}

// Start begins long polling and dispatches every new message to handler
// in arrival order.
func (a *TelegramAdapter) Start(ctx context.Context, handler channel.InboundHandler) error {
	if handler == nil {
		return fmt.Errorf("inbound handler is required")
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel != nil {
		return fmt.Errorf("telegram adapter already started")
	}
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.done = make(chan struct{})
	a.logger.Info("start", slog.String("bot", bot.Self.UserName))
	a.conn.Mark(true, nil)
	go func() {
		defer close(a.done)
		a.poll(pollCtx, bot, handler)
	}()
	return nil
}

// Stop ends polling. An in-flight long poll is abandoned when ctx expires.
func (a *TelegramAdapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	a.logger.Info("stop")
	cancel()
	a.conn.Mark(false, nil)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rawUpdate carries fields the bot library does not model yet.
type rawUpdate struct {
	Message       *rawMessage `json:"message"`
	EditedMessage *rawMessage `json:"edited_message"`
}

type rawMessage struct {
	MessageThreadID int  `json:"message_thread_id"`
	IsTopicMessage  bool `json:"is_topic_message"`
}

func (m *rawMessage) topicID() int {
	if m == nil || !m.IsTopicMessage {
		return 0
	}
	return m.MessageThreadID
}

func (a *TelegramAdapter) poll(ctx context.Context, bot *tgbotapi.BotAPI, handler channel.InboundHandler) {
	offset := 0
	for ctx.Err() == nil {
		params := tgbotapi.Params{}
		params.AddNonZero("offset", offset)
		params.AddNonZero("timeout", a.opts.PollTimeout)
		params.AddNonEmpty("allowed_updates", `["message","edited_message"]`)
		resp, err := bot.MakeRequest("getUpdates", params)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.logger.Warn("get updates failed", slog.Any("error", err))
			a.conn.Mark(false, err)
			if !sleepContext(ctx, telegramRetryAfter(err, pollRetryDelay)) {
				return
			}
			continue
		}
		if !a.conn.ConnectionStatus().Running {
			a.conn.Mark(true, nil)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(resp.Result, &items); err != nil {
			a.logger.Warn("decode updates failed", slog.Any("error", err))
			continue
		}
		for _, item := range items {
			var update tgbotapi.Update
			if err := json.Unmarshal(item, &update); err != nil {
				a.logger.Warn("decode update failed", slog.Any("error", err))
				continue
			}
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			var raw rawUpdate
			_ = json.Unmarshal(item, &raw)
			a.handleUpdate(ctx, bot, update, raw, handler)
		}
	}
}

func (a *TelegramAdapter) handleUpdate(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update, raw rawUpdate, handler channel.InboundHandler) {
	if update.EditedMessage != nil {
		a.history.Record(convertMessage(update.EditedMessage, raw.EditedMessage.topicID(), &bot.Self))
		return
	}
	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	msg := convertMessage(update.Message, raw.Message.topicID(), &bot.Self)
	a.history.Record(msg)
	if msg.Outgoing {
		return
	}
	a.logger.Info(
		"inbound received",
		slog.String("conversation", msg.Conversation.String()),
		slog.String("chat_type", string(msg.ChatType)),
		slog.Int64("user_id", msg.Sender.ID),
		slog.String("username", msg.Sender.Username),
		slog.Int("message_id", msg.ID),
	)
	handler(ctx, msg)
}

// ConnectionStatus reports whether long polling is healthy.
func (a *TelegramAdapter) ConnectionStatus() channel.ConnectionStatus {
	return a.conn.ConnectionStatus()
}

// FetchHistory returns recorded messages of conv, newest first.
func (a *TelegramAdapter) FetchHistory(ctx context.Context, conv channel.Conversation, limit int) ([]channel.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.history.Recent(conv, limit), nil
}

// SendText delivers text to conv, replying to replyTo when it is non-zero.
func (a *TelegramAdapter) SendText(ctx context.Context, conv channel.Conversation, text string, replyTo int) (channel.Message, error) {
	if err := ctx.Err(); err != nil {
		return channel.Message{}, err
	}
	text = truncateTelegramText(sanitizeTelegramText(strings.TrimSpace(text)))
	if text == "" {
		return channel.Message{}, channel.ErrEmptyMessage
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return channel.Message{}, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", conv.ChatID)
	params.AddNonZero("message_thread_id", conv.TopicID)
	params.AddNonEmpty("text", text)
	params.AddNonZero("reply_to_message_id", replyTo)
	if replyTo > 0 {
		params.AddBool("allow_sending_without_reply", true)
	}
	resp, err := bot.MakeRequest("sendMessage", params)
	if err != nil {
		a.logger.Error("send message failed", slog.String("conversation", conv.String()), slog.Any("error", err))
		return channel.Message{}, err
	}
	var sent tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return channel.Message{}, fmt.Errorf("decode sent message: %w", err)
	}
	msg := convertMessage(&sent, conv.TopicID, &bot.Self)
	msg.Conversation = conv
	msg.Outgoing = true
	a.history.Record(msg)
	return msg, nil
}

// SignalActivity sends a chat action such as "typing".
func (a *TelegramAdapter) SignalActivity(ctx context.Context, conv channel.Conversation, activity channel.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	return sendTelegramChatAction(bot, conv, activity)
}

func sendTelegramChatAction(bot *tgbotapi.BotAPI, conv channel.Conversation, activity channel.Activity) error {
	action := tgbotapi.ChatTyping
	if activity == channel.ActivityRecordVoice {
		action = tgbotapi.ChatRecordVoice
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", conv.ChatID)
	params.AddNonZero("message_thread_id", conv.TopicID)
	params.AddNonEmpty("action", action)
	_, err := bot.MakeRequest("sendChatAction", params)
	return err
}

// DownloadMedia fetches the bytes of a platform file.
func (a *TelegramAdapter) DownloadMedia(ctx context.Context, file channel.File) ([]byte, error) {
	fileID := strings.TrimSpace(file.ID)
	if fileID == "" {
		return nil, fmt.Errorf("telegram file id is required")
	}
	if file.Size > media.MaxAssetBytes {
		return nil, fmt.Errorf("%w: max %d bytes", media.ErrAssetTooLarge, media.MaxAssetBytes)
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return nil, err
	}
	remote, err := bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("resolve telegram file: %w", err)
	}
	downloadURL := fmt.Sprintf(a.opts.FileEndpoint, bot.Token, remote.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	client := &http.Client{Timeout: 60 * time.Second, Transport: a.opts.HTTPClient.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("download attachment status: %d", resp.StatusCode)
	}
	if resp.ContentLength > media.MaxAssetBytes {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: max %d bytes", media.ErrAssetTooLarge, media.MaxAssetBytes)
	}
	return media.ReadAllWithLimit(resp.Body, media.MaxAssetBytes)
}

func convertMessage(msg *tgbotapi.Message, topicID int, self *tgbotapi.User) channel.Message {
	out := channel.Message{
		ID:   msg.MessageID,
		Date: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.Chat != nil {
		out.Conversation = channel.Conversation{ChatID: msg.Chat.ID, TopicID: topicID}
		out.ChatType = channel.ChatType(strings.TrimSpace(msg.Chat.Type))
	}
	if msg.From != nil {
		out.Sender = convertUser(msg.From)
		out.Outgoing = self != nil && msg.From.ID == self.ID
	} else if msg.SenderChat != nil {
		out.Sender = channel.Identity{
			ID:        msg.SenderChat.ID,
			Username:  strings.TrimSpace(msg.SenderChat.UserName),
			FirstName: strings.TrimSpace(msg.SenderChat.Title),
		}
	}
	out.Text = msg.Text
	if strings.TrimSpace(out.Text) == "" {
		out.Text = msg.Caption
	}
	if len(msg.Photo) > 0 {
		photo := pickTelegramPhoto(msg.Photo)
		out.Photo = &channel.File{
			ID:       photo.FileID,
			UniqueID: photo.FileUniqueID,
			Size:     int64(photo.FileSize),
			Mime:     "image/jpeg",
		}
	}
	if msg.Document != nil {
		out.Document = &channel.File{
			ID:       msg.Document.FileID,
			UniqueID: msg.Document.FileUniqueID,
			Size:     int64(msg.Document.FileSize),
			Mime:     strings.TrimSpace(msg.Document.MimeType),
			Name:     strings.TrimSpace(msg.Document.FileName),
		}
	}
	if msg.Voice != nil {
		out.Voice = &channel.File{
			ID:       msg.Voice.FileID,
			UniqueID: msg.Voice.FileUniqueID,
			Size:     int64(msg.Voice.FileSize),
			Mime:     strings.TrimSpace(msg.Voice.MimeType),
			Name:     "voice.ogg",
		}
	}
	if msg.Audio != nil {
		out.Audio = &channel.File{
			ID:       msg.Audio.FileID,
			UniqueID: msg.Audio.FileUniqueID,
			Size:     int64(msg.Audio.FileSize),
			Mime:     strings.TrimSpace(msg.Audio.MimeType),
			Name:     strings.TrimSpace(msg.Audio.FileName),
		}
	}
	if msg.VideoNote != nil {
		out.VideoNote = &channel.File{
			ID:       msg.VideoNote.FileID,
			UniqueID: msg.VideoNote.FileUniqueID,
			Size:     int64(msg.VideoNote.FileSize),
			Mime:     "video/mp4",
			Name:     "video_note.mp4",
		}
	}
	if msg.ReplyToMessage != nil {
		out.ReplyToID = msg.ReplyToMessage.MessageID
		out.ReplyToSelf = self != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == self.ID
	}
	if self != nil {
		out.Mentioned = isTelegramBotMentioned(msg, self.UserName, self.ID)
	}
	return out
}

func convertUser(user *tgbotapi.User) channel.Identity {
	if user == nil {
		return channel.Identity{}
	}
	return channel.Identity{
		ID:        user.ID,
		Username:  strings.TrimSpace(user.UserName),
		FirstName: strings.TrimSpace(user.FirstName),
		LastName:  strings.TrimSpace(user.LastName),
		IsBot:     user.IsBot,
	}
}

func isTelegramBotMentioned(msg *tgbotapi.Message, botUsername string, botID int64) bool {
	if msg == nil {
		return false
	}
	normalizedBot := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(botUsername), "@"))
	if normalizedBot != "" {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			text = strings.TrimSpace(msg.Caption)
		}
		if text != "" && strings.Contains(strings.ToLower(text), "@"+normalizedBot) {
			return true
		}
	}
	entities := make([]tgbotapi.MessageEntity, 0, len(msg.Entities)+len(msg.CaptionEntities))
	entities = append(entities, msg.Entities...)
	entities = append(entities, msg.CaptionEntities...)
	for _, entity := range entities {
		if entity.Type == "text_mention" && entity.User != nil && entity.User.ID == botID {
			return true
		}
	}
	return false
}

func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText truncates text to telegramMaxMessageLength on a valid
// UTF-8 rune boundary, appending "..." when truncation occurs.
func truncateTelegramText(text string) string {
	if len(text) <= telegramMaxMessageLength {
		return text
	}
	const suffix = "..."
	limit := telegramMaxMessageLength - len(suffix)
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}

// telegramRetryAfter returns the flood-control wait carried by err, or fallback.
func telegramRetryAfter(err error, fallback time.Duration) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
