package telegram

import (
	"fmt"
	"log/slog"
	"strings"
)

// slogBotLogger routes the bot library's log output into slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	if l == nil || l.log == nil {
		return
	}
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	if l == nil || l.log == nil {
		return
	}
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
