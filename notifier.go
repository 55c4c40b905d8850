package main

import (
	"strings"

	"github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/Shamil-creator/botik/schedule"
)

// tgNotifier adapts the bot API to the monitor's notification sink. A
// 403 from Telegram means the subscriber blocked the bot; that is the
// irrecoverable case the monitor removes subscribers for.
type tgNotifier struct {
	bot *tgbotapi.BotAPI
}

func (n *tgNotifier) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	if _, err := n.bot.Send(msg); err != nil {
		if isBlockedErr(err) {
			return &schedule.DeliveryError{ChatID: chatID, Err: err}
		}
		return err
	}
	return nil
}

func isBlockedErr(err error) bool {
	text := err.Error()
	return strings.Contains(text, "Forbidden") ||
		strings.Contains(text, "blocked") ||
		strings.Contains(text, "deactivated") ||
		strings.Contains(text, "chat not found")
}
