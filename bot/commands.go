package bot

import (
	"fmt"
	"strings"
	"time"

	"keyadmin/entity"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

const auditPage = 10

var commands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Check notification status"},
	{Command: "audit", Description: "Show recent key operations"},
	{Command: "help", Description: "Show available commands"},
}

func (t *TgBot) setCommands() {
	_, err := t.api.SetMyCommands(commands, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeDefault{},
	})
	if err != nil {
		t.log.Warn("setting default commands", "error", err)
	}
}

func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if t.isAdmin(chatId) {
		t.plainResponse(chatId, "Notifications for this chat are ENABLED")
		return nil
	}
	t.plainResponse(chatId, fmt.Sprintf(
		"This chat is not an admin chat\\. Chat id: `%d`", chatId))
	return nil
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	var b strings.Builder
	b.WriteString("*Commands*\n")
	for _, c := range commands {
		b.WriteString(Sanitize(fmt.Sprintf("/%s - %s", c.Command, c.Description)))
		b.WriteString("\n")
	}
	t.plainResponse(ctx.EffectiveUser.Id, b.String())
	return nil
}

func (t *TgBot) auditCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.isAdmin(chatId) {
		t.plainResponse(chatId, "Not allowed")
		return nil
	}
	if t.audit == nil {
		t.plainResponse(chatId, "Audit log is not connected")
		return nil
	}
	events, err := t.audit.RecentAudit(auditPage)
	if err != nil {
		t.reportError(chatId, "/audit", err)
		return nil
	}
	t.plainResponse(chatId, Sanitize(formatAudit(events)))
	return nil
}

// formatAudit renders events as plain text, one line each.
func formatAudit(events []*entity.AuditEvent) string {
	if len(events) == 0 {
		return "No operations recorded"
	}
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.CreatedAt.UTC().Format(time.DateTime))
		b.WriteString(" ")
		b.WriteString(e.Initiator)
		b.WriteString(" ")
		b.WriteString(e.Operation)
		switch {
		case e.Error != "":
			b.WriteString(": error: " + e.Error)
		case e.Operation == entity.AuditIssue:
			fmt.Fprintf(&b, ": %s %s for %s", e.Plan, e.Token, strings.Join(e.AccountIds, ", "))
		case e.Totals != nil:
			fmt.Fprintf(&b, ": %d users, %d keys", e.Totals.UsersProcessed, e.Totals.KeysRemoved)
			if len(e.Failed) > 0 {
				fmt.Fprintf(&b, ", %d failed", len(e.Failed))
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
