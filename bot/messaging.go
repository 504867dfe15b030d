package bot

import (
	"log/slog"
)

func (t *TgBot) SendMessage(msg string) {
	t.SendMessageWithLevel(msg, t.minLogLevel)
}

// SendMessageWithLevel sends a MarkdownV2 message to every admin chat when
// level is at or above the bot's minimum.
func (t *TgBot) SendMessageWithLevel(msg string, level slog.Level) {
	if level < t.minLogLevel {
		return
	}
	for _, id := range t.adminIds {
		t.plainResponse(id, msg)
	}
}

// NotifyAdmins sends plain text to every admin chat.
func (t *TgBot) NotifyAdmins(msg string) {
	msg = Sanitize(msg)
	for _, id := range t.adminIds {
		t.plainResponse(id, msg)
	}
}
