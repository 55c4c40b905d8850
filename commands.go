package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pkg/errors"
	"github.com/slongfield/pyfmt"

	"github.com/Shamil-creator/botik/schedule"
)

// Bot wires the chat front end to the pipeline. Everything it needs is
// constructed once in main and passed in here; no package-level state.
type Bot struct {
	api      *tgbotapi.BotAPI
	config   Config
	store    *Storage
	cache    *schedule.Cache
	resolver *schedule.Resolver
	calendar *schedule.Calendar
}

const requestTimeout = 90 * time.Second

func (b *Bot) replyTo(msg *tgbotapi.Message, text string) (tgbotapi.Message, error) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	reply.ParseMode = "HTML"
	return b.api.Send(reply)
}

func (b *Bot) adminCheck(uid int64) bool {
	for _, id := range b.config.Admins {
		if id == uid {
			return true
		}
	}
	return false
}

func (b *Bot) helpCmd(msg *tgbotapi.Message) error {
	text := lang.Help
	if b.adminCheck(int64(msg.From.ID)) {
		text += "\n\n" + lang.AdminHelp
	}
	_, err := b.replyTo(msg, text)
	return err
}

func (b *Bot) startCmd(msg *tgbotapi.Message) error {
	_, err := b.replyTo(msg, lang.Start)
	return err
}

func (b *Bot) setGroupCmd(msg *tgbotapi.Message) error {
	group := strings.TrimSpace(msg.CommandArguments())
	if group == "" {
		_, err := b.replyTo(msg, lang.Usage.SetGroup)
		return err
	}
	if err := b.store.SetUserGroup(msg.Chat.ID, group, msg.From.UserName); err != nil {
		return err
	}
	b.cache.AddWatcher(msg.Chat.ID)
	_, err := b.replyTo(msg, pyfmt.Must(lang.Replies.GroupSaved, map[string]interface{}{"group": group}))
	return err
}

func (b *Bot) myGroupCmd(msg *tgbotapi.Message) error {
	group, err := b.store.UserGroup(msg.Chat.ID)
	if err != nil {
		return err
	}
	if group == "" {
		_, err = b.replyTo(msg, lang.Replies.NoStoredGroup)
		return err
	}
	_, err = b.replyTo(msg, pyfmt.Must(lang.Replies.StoredGroup, map[string]interface{}{"group": group}))
	return err
}

func (b *Bot) weekCmd(msg *tgbotapi.Message) error {
	info := b.calendar.CurrentWeek(time.Now().In(timezone))
	if info == nil {
		_, err := b.replyTo(msg, lang.Replies.NoCurrentWeek)
		return err
	}
	_, err := b.replyTo(msg, "📆 "+info.FormatWeek())
	return err
}

func (b *Bot) scheduleCmd(msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())

	var groupQuery, dayQuery string
	if len(args) > 0 {
		groupQuery = args[0]
		dayQuery = strings.Join(args[1:], " ")
	} else {
		stored, err := b.store.UserGroup(msg.Chat.ID)
		if err != nil {
			return err
		}
		if stored == "" {
			_, err = b.replyTo(msg, lang.Replies.NoStoredGroup)
			return err
		}
		groupQuery = stored
	}

	day := ""
	if dayQuery != "" {
		day = schedule.NormalizeDay(dayQuery)
		if day == "" {
			_, err := b.replyTo(msg, lang.Replies.UnknownDay)
			return err
		}
	}

	// Asking for a schedule opts the chat into update notifications.
	b.cache.AddWatcher(msg.Chat.ID)
	if err := b.store.TouchActivity(msg.Chat.ID); err != nil {
		log.Printf("ERROR: Failed to touch activity chat_id=%d: %v", msg.Chat.ID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	files, err := b.resolver.EnsureFileList(ctx)
	if err != nil {
		log.Printf("ERROR: Failed to obtain file listing: %v", err)
		_, err = b.replyTo(msg, lang.Replies.Unavailable)
		return err
	}
	if len(files) == 0 {
		_, err = b.replyTo(msg, lang.Replies.EmptyListing)
		return err
	}

	weekInfo := b.calendar.CurrentWeek(time.Now().In(timezone))
	week := 0
	if weekInfo != nil {
		week = weekInfo.Number
	}

	match, err := b.resolver.FindGroupSchedule(ctx, files, groupQuery, day, week)
	if err != nil {
		return errors.Wrapf(err, "find schedule group=%s", groupQuery)
	}
	if match == nil {
		log.Printf("WARN: Schedule not found chat_id=%d group=%s day=%s", msg.Chat.ID, groupQuery, day)
		_, err = b.replyTo(msg, pyfmt.Must(lang.Replies.NotFound, map[string]interface{}{"group": groupQuery}))
		return err
	}

	text := match.Text
	if day != "" {
		text = schedule.StripDayHeading(text)
	}

	header := []string{
		"📄 " + headerTitle(match.File.Title),
		"👥 Группа: " + match.Group,
	}
	if day != "" {
		header = append(header, "🗓 День: "+day)
	}
	if weekInfo != nil {
		header = append(header, "📆 "+weekInfo.FormatWeek())
	}
	header = append(header, "")

	_, err = b.replyTo(msg, strings.Join(header, "\n")+text)
	return err
}

func headerTitle(title string) string {
	if short := schedule.FormatTitle(title); short != title {
		return "Расписание (" + short + ")"
	}
	return title
}

func (b *Bot) broadcastCmd(msg *tgbotapi.Message) error {
	if !b.adminCheck(int64(msg.From.ID)) {
		_, err := b.replyTo(msg, lang.Replies.MissingPermissions)
		return err
	}
	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		_, err := b.replyTo(msg, lang.Usage.Broadcast)
		return err
	}

	ids, err := b.store.ChatIDs()
	if err != nil {
		return errors.Wrap(err, "list chats")
	}
	notifier := &tgNotifier{bot: b.api}
	sent, failed := 0, 0
	for _, chatID := range ids {
		if err := notifier.SendMessage(chatID, text); err != nil {
			failed++
			var delivery *schedule.DeliveryError
			if errors.As(err, &delivery) {
				b.cache.RemoveWatcher(chatID)
				if rmErr := b.store.RemoveUser(chatID); rmErr != nil {
					log.Printf("ERROR: Failed to remove unreachable user chat_id=%d: %v", chatID, rmErr)
				}
				continue
			}
			log.Printf("ERROR: Broadcast failed chat_id=%d: %v", chatID, err)
			continue
		}
		sent++
	}
	_, err = b.replyTo(msg, pyfmt.Must(lang.Replies.BroadcastDone, map[string]interface{}{
		"sent":   sent,
		"failed": failed,
	}))
	return err
}

func (b *Bot) statsCmd(msg *tgbotapi.Message) error {
	if !b.adminCheck(int64(msg.From.ID)) {
		_, err := b.replyTo(msg, lang.Replies.MissingPermissions)
		return err
	}
	stats := b.cache.Stats()
	users, err := b.store.UserCount()
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		"Файлов в списке: %d\nРабочих книг в памяти: %d (%d КБ)\nМетаданных: %d\nЯрлыков групп: %d\nНаблюдателей: %d\nПодписчиков: %d",
		stats.Files, stats.ContentEntries, stats.ContentBytes/1024,
		stats.MetadataEntries, stats.GroupLocations, stats.Watchers, users)
	_, err = b.replyTo(msg, text)
	return err
}
