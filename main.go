package main

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/jasonlvhit/gocron"
	"gopkg.in/yaml.v2"

	"github.com/Shamil-creator/botik/schedule"
)

func extractCommand(bot *tgbotapi.BotAPI, update *tgbotapi.Update) string {
	if update.Message == nil || update.Message.Text == "" || update.Message.Entities == nil {
		return ""
	}

	for _, entity := range *update.Message.Entities {
		if entity.Type != "bot_command" {
			return ""
		}
		if entity.Offset != 0 {
			return ""
		}
		fullCmd := update.Message.Text[:entity.Length]
		if strings.Contains(fullCmd, "@") && !strings.HasSuffix(fullCmd, bot.Self.UserName) {
			return ""
		}

		splitten := strings.Split(fullCmd, "@")
		return splitten[0][1:]
	}
	return ""
}

func main() {
	confFile, err := ioutil.ReadFile("botconf.yml")
	if err != nil {
		log.Fatalln("Failed to read config file (botconf.yml):", err)
	}
	var config Config
	if err = yaml.Unmarshal(confFile, &config); err != nil {
		log.Fatalln("Failed to decode config file (botconf.yml):", err)
	}
	config.applyDefaults()

	semesterStart, err := time.ParseInLocation("2006-01-02", config.SemesterStart, timezone)
	if err != nil {
		log.Fatalln("Failed to parse semester_start:", err)
	}

	store, err := NewStorage(config.DBfile)
	if err != nil {
		log.Fatalln("Failed to open DB:", err)
	}
	defer store.Close()

	cache := schedule.NewCache(schedule.CacheConfig{
		Dir:         config.CacheDir,
		ContentTTL:  time.Duration(config.ContentTTLMin) * time.Minute,
		MetadataTTL: time.Duration(config.MetadataTTLMin) * time.Minute,
		LocationTTL: time.Duration(config.LocationTTLMin) * time.Minute,
		ListTTL:     time.Duration(config.FileListTTLMin) * time.Minute,
		MaxBytes:    int64(config.MaxCacheMB) * 1024 * 1024,
	})
	fetcher := schedule.NewFetcher(config.ScheduleURL, config.connectTimeout(), config.readTimeout())
	resolver := schedule.NewResolver(fetcher, cache, 2)
	calendar := schedule.NewCalendar(semesterStart)

	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		log.Fatalln("Failed to init Bot API:", err)
	}

	bot := &Bot{
		api:      api,
		config:   config,
		store:    store,
		cache:    cache,
		resolver: resolver,
		calendar: calendar,
	}

	// Registered subscribers watch for schedule changes from the start.
	if ids, err := store.ChatIDs(); err != nil {
		log.Println("ERROR: Failed to seed watchers:", err)
	} else {
		for _, id := range ids {
			cache.AddWatcher(id)
		}
	}

	monitor := schedule.NewMonitor(fetcher, cache, store, &tgNotifier{bot: api}, schedule.MonitorConfig{
		Interval:      time.Duration(config.MonitorIntervalMin) * time.Minute,
		FailThreshold: config.MonitorFailThreshold,
		Backoff:       time.Duration(config.MonitorBackoffMin) * time.Minute,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	gocron.Every(1).Day().At("04:30").Do(cache.PruneDisk)
	gocron.Every(1).Hour().Do(func() {
		log.Printf("Cache stats: %+v", cache.Stats())
	})
	go func() { <-gocron.Start() }()

	if config.StatusAddr != "" {
		startStatusServer(config.StatusAddr, cache, store)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 25
	updates, err := api.GetUpdatesChan(u)
	if err != nil {
		log.Fatalln("Failed to init. updates channel:", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGHUP, os.Interrupt)

	log.Println("Started.")
	for {
		select {
		case s := <-sig:
			log.Printf("%v; stopping...\n", s)
			return
		case update := <-updates:
			command := extractCommand(api, &update)
			if command == "" {
				continue
			}

			var err error
			switch command {
			case "start":
				err = bot.startCmd(update.Message)
			case "help":
				err = bot.helpCmd(update.Message)
			case "schedule":
				err = bot.scheduleCmd(update.Message)
			case "setgroup":
				err = bot.setGroupCmd(update.Message)
			case "mygroup":
				err = bot.myGroupCmd(update.Message)
			case "week":
				err = bot.weekCmd(update.Message)
			case "broadcast":
				err = bot.broadcastCmd(update.Message)
			case "stats":
				err = bot.statsCmd(update.Message)
			}

			if err != nil {
				log.Printf("ERROR: while processing command %s in chatid=%d,msgid=%d,uid=%d: %v\n",
					command, update.Message.Chat.ID, update.Message.MessageID, update.Message.From.ID, err)
			}
		}
	}
}
