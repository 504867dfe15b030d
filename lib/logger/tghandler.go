package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"keyadmin/bot"
)

// Sender delivers a formatted MarkdownV2 message; implemented by bot.TgBot.
type Sender interface {
	SendMessageWithLevel(msg string, level slog.Level)
}

// TelegramHandler is a slog.Handler that sends log messages to Telegram
type TelegramHandler struct {
	handler  slog.Handler
	sender   Sender
	minLevel slog.Level
	mu       *sync.Mutex
	attrs    []slog.Attr
	group    string
}

// NewTelegramHandler creates a new TelegramHandler
func NewTelegramHandler(handler slog.Handler, sender Sender, minLevel slog.Level) *TelegramHandler {
	return &TelegramHandler{
		handler:  handler,
		sender:   sender,
		minLevel: minLevel,
		mu:       &sync.Mutex{},
	}
}

// Enabled reports whether the wrapped handler takes the record. Records below
// minLevel still reach the wrapped handler but are not forwarded.
func (h *TelegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *TelegramHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.handler.Handle(ctx, record); err != nil {
		return err
	}
	if record.Level < h.minLevel || h.sender == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sender.SendMessageWithLevel(h.format(record), record.Level)
	return nil
}

func (h *TelegramHandler) format(record slog.Record) string {
	name := record.Message
	if h.group != "" {
		name = h.group + "." + record.Message
	}
	msg := fmt.Sprintf("*%s* `%s`", record.Level.String(), name)

	for _, attr := range h.attrs {
		if attr.Key == "error" {
			msg += fmt.Sprintf("\n%s: ```error %v ```", attr.Key, attr.Value)
		} else {
			msg += bot.Sanitize(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value))
		}
	}
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" {
			msg += fmt.Sprintf("\n%s: ```error %v ```", attr.Key, attr.Value)
		} else {
			msg += bot.Sanitize(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value))
		}
		return true
	})
	return msg
}

func (h *TelegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &TelegramHandler{
		handler:  h.handler.WithAttrs(attrs),
		sender:   h.sender,
		minLevel: h.minLevel,
		mu:       h.mu,
		attrs:    newAttrs,
		group:    h.group,
	}
}

func (h *TelegramHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &TelegramHandler{
		handler:  h.handler.WithGroup(name),
		sender:   h.sender,
		minLevel: h.minLevel,
		mu:       h.mu,
		attrs:    h.attrs,
		group:    group,
	}
}
