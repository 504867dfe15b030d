package bot

import (
	"fmt"
	"log/slog"
	"strings"

	"keyadmin/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

const maxMessageLength = 4096

func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		t.log.With("id", chatId).Debug("empty message")
		return
	}

	for _, part := range splitMessage(text, maxMessageLength) {
		_, err := t.send.SendMessage(chatId, part, &tgbotapi.SendMessageOpts{
			ParseMode: "MarkdownV2",
		})
		if err == nil {
			continue
		}
		t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
		_, err = t.send.SendMessage(chatId, part, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending safe message", sl.Err(err))
		}
	}
}

// Sanitize escapes MarkdownV2 reserved characters. Backticks are kept so that
// callers can still format code spans.
func Sanitize(input string) string {
	const reservedChars = "\\_{}#+-.!|()[]=*>~"
	var b strings.Builder
	b.Grow(len(input))
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Try to split at newline
		cutAt := maxLen
		nlIdx := strings.LastIndex(text[:maxLen], "\n")
		if nlIdx > 0 {
			cutAt = nlIdx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

// reportError logs the error and sends a neutral message to the chat.
func (t *TgBot) reportError(chatId int64, command string, err error) {
	t.log.Error("bot command failed",
		slog.String("command", command),
		slog.Int64("user_id", chatId),
		sl.Err(err),
	)
	t.plainResponse(chatId, fmt.Sprintf("Command `%s` failed\\. Check server logs\\.", Sanitize(command)))
}
