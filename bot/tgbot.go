// Package bot implements a Telegram bot that keeps key administrators informed.
//
// Admin chats are fixed in configuration. The bot forwards log records at or
// above a minimum level, posts operation summaries, and answers a few
// read-only commands: /start, /help and /audit.
package bot

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"keyadmin/entity"
	"keyadmin/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
)

// AuditReader lists recent admin operations for the /audit command.
type AuditReader interface {
	RecentAudit(limit int64) ([]*entity.AuditEvent, error)
}

// sender is the part of the Telegram API the bot sends through.
type sender interface {
	SendMessage(chatId int64, text string, opts *tgbotapi.SendMessageOpts) (*tgbotapi.Message, error)
}

type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	send        sender
	adminIds    []int64
	minLogLevel slog.Level
	updater     *ext.Updater
	audit       AuditReader
}

func NewTgBot(apiKey string, adminIds []int64, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot := newBot(api, adminIds, log)
	tgBot.api = api
	return tgBot, nil
}

func newBot(send sender, adminIds []int64, log *slog.Logger) *TgBot {
	return &TgBot{
		log:         log.With(sl.Module("tgbot")),
		send:        send,
		adminIds:    slices.Clone(adminIds),
		minLogLevel: slog.LevelDebug,
	}
}

// SetMinLogLevel drops forwarded log records below level.
func (t *TgBot) SetMinLogLevel(level slog.Level) {
	t.minLogLevel = level
}

func (t *TgBot) SetAuditReader(audit AuditReader) {
	t.audit = audit
}

// Start polls for updates and blocks until Stop is called.
func (t *TgBot) Start() error {
	if t.api == nil {
		return fmt.Errorf("telegram api not initialized")
	}

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))
	dispatcher.AddHandler(handlers.NewCommand("audit", t.auditCmd))

	t.setCommands()

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	t.log.With(slog.Int("admins", len(t.adminIds))).Info("telegram bot started")

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		t.updater.Stop()
	}
}

func (t *TgBot) isAdmin(chatId int64) bool {
	return slices.Contains(t.adminIds, chatId)
}
