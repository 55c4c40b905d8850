package schedule

import (
	"context"
	"log"
	"regexp"
	"time"

	"github.com/pkg/errors"
)

// Notifier delivers change notifications to subscribers. Implemented by
// the bot front end.
type Notifier interface {
	SendMessage(chatID int64, text string) error
}

// UserDirectory is the monitor's only write into the registration store:
// a subscriber whose delivery irrecoverably fails is deleted.
type UserDirectory interface {
	RemoveUser(chatID int64) error
}

// MonitorConfig tunes the polling loop.
type MonitorConfig struct {
	Interval      time.Duration
	FailThreshold int
	Backoff       time.Duration
}

// Monitor re-polls the listing page, detects changes through the cache's
// listing signature, pre-warms the byte cache and fans notifications out
// to watchers. It runs for the lifetime of the process; no failure in a
// cycle is fatal.
type Monitor struct {
	fetcher  *Fetcher
	cache    *Cache
	users    UserDirectory
	notifier Notifier
	cfg      MonitorConfig

	failures int
}

func NewMonitor(fetcher *Fetcher, cache *Cache, users UserDirectory, notifier Notifier, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 4 * cfg.Interval
	}
	return &Monitor{fetcher: fetcher, cache: cache, users: users, notifier: notifier, cfg: cfg}
}

// Run loops until ctx is cancelled. Consecutive transient failures past
// the threshold earn one extended sleep before the normal interval
// resumes.
func (m *Monitor) Run(ctx context.Context) {
	for {
		err := m.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ERROR: Monitor cycle failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.nextSleep(err)):
		}
	}
}

// nextSleep folds one cycle result into the consecutive-failure count
// and picks the wait before the next cycle. Only transient network
// failures count toward the threshold; an HTTP status error neither
// advances nor resets the count. Crossing the threshold earns a single
// extended backoff sleep and resets the count.
func (m *Monitor) nextSleep(err error) time.Duration {
	if err == nil {
		m.failures = 0
		return m.cfg.Interval
	}
	if !IsTransientNetErr(err) {
		return m.cfg.Interval
	}
	m.failures++
	if m.failures >= m.cfg.FailThreshold {
		m.failures = 0
		log.Printf("WARN: Monitor backing off for %s after %d transient failures", m.cfg.Backoff, m.cfg.FailThreshold)
		return m.cfg.Backoff
	}
	return m.cfg.Interval
}

// Cycle performs one poll: fetch the listing, diff it against the
// previous signature, pre-warm missing files, notify on change.
func (m *Monitor) Cycle(ctx context.Context) error {
	files, err := m.fetcher.ListFiles(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch file listing")
	}

	_, hadSignature := m.cache.Signature()
	changed := m.cache.UpdateFileList(files)
	m.preload(ctx, files, !changed)
	if changed && hadSignature {
		m.notifyUpdate(files)
	}
	return nil
}

// preload warms the byte cache. With onlyMissing (unchanged listing) a
// file already persisted is left alone; on change, disk copies are
// promoted back into memory.
func (m *Monitor) preload(ctx context.Context, files []File, onlyMissing bool) {
	for _, file := range files {
		if ctx.Err() != nil {
			return
		}
		if stored, ok := m.cache.LoadFileFromDisk(file.URL); ok {
			if !onlyMissing {
				m.cache.SetFileContent(file.URL, stored, false)
			}
			continue
		}
		raw, err := m.fetcher.Download(ctx, file)
		if err != nil {
			log.Printf("ERROR: Failed to preload file title=%s url=%s: %v", file.Title, file.URL, err)
			continue
		}
		processed, err := Normalize(raw)
		if err != nil {
			log.Printf("ERROR: Failed to normalize preloaded file title=%s: %v", file.Title, err)
			continue
		}
		m.cache.SetFileContent(file.URL, processed, true)
		log.Printf("Schedule file cached title=%s", file.Title)
	}
}

var titleDateRe = regexp.MustCompile(`(?i)от\s+(\d{2}\.\d{2}\.\d{4})`)

// FormatTitle shortens a listing title to its publication date when one
// is embedded ("Расписание от 01.09.2025" → "от 01.09.2025").
func FormatTitle(title string) string {
	if m := titleDateRe.FindStringSubmatch(title); m != nil {
		return "от " + m[1]
	}
	return title
}

func (m *Monitor) notifyUpdate(files []File) {
	watchers := m.cache.Watchers()
	if len(watchers) == 0 {
		log.Println("No watchers to notify about schedule update")
		return
	}

	message := "📢 Расписание было обновлено."
	if len(files) > 0 {
		message = "📢 Расписание обновлено: " + FormatTitle(files[0].Title)
	}

	for _, chatID := range watchers {
		err := m.notifier.SendMessage(chatID, message)
		if err == nil {
			continue
		}
		var delivery *DeliveryError
		if errors.As(err, &delivery) {
			m.cache.RemoveWatcher(chatID)
			if rmErr := m.users.RemoveUser(chatID); rmErr != nil {
				log.Printf("ERROR: Failed to remove unreachable user chat_id=%d: %v", chatID, rmErr)
			}
			log.Printf("WARN: Watcher unreachable, removed chat_id=%d: %v", chatID, err)
			continue
		}
		log.Printf("ERROR: Failed to notify watcher chat_id=%d: %v", chatID, err)
	}
}
