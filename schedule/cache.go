package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CacheConfig sizes the four cache layers. The metadata and location
// TTLs should exceed the content TTL: metadata is coarser and cheaper to
// keep, and a group's location in the files changes rarely.
type CacheConfig struct {
	Dir         string
	ContentTTL  time.Duration
	MetadataTTL time.Duration
	LocationTTL time.Duration
	ListTTL     time.Duration
	MaxBytes    int64
}

// Location is a cached shortcut: which file and sheet a group lives in,
// and the exact header the group matched as.
type Location struct {
	FileURL string
	Sheet   string
	Group   string
}

type contentEntry struct {
	at   time.Time
	data []byte
}

// SheetGroups pairs a sheet with its group headers. Metadata is a slice,
// not a map, so the resolver scans sheets in workbook order and repeated
// identical requests resolve identically.
type SheetGroups struct {
	Sheet  string
	Groups []string
}

type metaEntry struct {
	at     time.Time
	sheets []SheetGroups
}

type locationEntry struct {
	at  time.Time
	loc Location
}

// Cache is the process-local store shared by the resolver and the
// monitor: the file listing with its change signature, raw workbook
// bytes (memory, size-bounded, mirrored to disk), per-file sheet→groups
// metadata, the group location shortcut, and the watcher set. Each layer
// has its own lock so unrelated lookups never serialize on each other.
type Cache struct {
	cfg CacheConfig
	now func() time.Time

	listMu   sync.Mutex
	files    []File
	filesAt  time.Time
	hasFiles bool
	sig      []File
	hasSig   bool

	contentMu    sync.Mutex
	content      map[string]contentEntry
	contentOrder []string
	contentSize  int64

	metaMu sync.Mutex
	meta   map[string]metaEntry

	locMu     sync.Mutex
	locations map[string]locationEntry

	watchMu  sync.Mutex
	watchers map[int64]struct{}
}

func NewCache(cfg CacheConfig) *Cache {
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			log.Printf("ERROR: Failed to create cache dir %s: %v", cfg.Dir, err)
		}
	}
	return &Cache{
		cfg:       cfg,
		now:       time.Now,
		content:   make(map[string]contentEntry),
		meta:      make(map[string]metaEntry),
		locations: make(map[string]locationEntry),
		watchers:  make(map[int64]struct{}),
	}
}

// ----- file listing -----

// FileList returns the cached listing while it is fresh.
func (c *Cache) FileList() ([]File, bool) {
	c.listMu.Lock()
	defer c.listMu.Unlock()
	if !c.hasFiles || c.now().Sub(c.filesAt) > c.cfg.ListTTL {
		return nil, false
	}
	return append([]File(nil), c.files...), true
}

// FileListStale returns the cached listing even past its TTL. Used when
// the site is unreachable and stale data beats no data.
func (c *Cache) FileListStale() ([]File, bool) {
	c.listMu.Lock()
	defer c.listMu.Unlock()
	if !c.hasFiles {
		return nil, false
	}
	return append([]File(nil), c.files...), true
}

// Signature returns the (url,title) signature of the last accepted
// listing and whether one exists at all. The signature outlives the
// listing's TTL: it tracks change detection, not freshness.
func (c *Cache) Signature() ([]File, bool) {
	c.listMu.Lock()
	defer c.listMu.Unlock()
	return append([]File(nil), c.sig...), c.hasSig
}

// UpdateFileList stores a freshly fetched listing and reports whether it
// differs from the previous one. On change, every cache layer is pruned
// of entries referring to URLs no longer published: a file that
// disappeared or got renamed must not keep serving lookups.
func (c *Cache) UpdateFileList(files []File) bool {
	c.listMu.Lock()
	changed := !c.hasSig || !sameFiles(c.sig, files)
	c.sig = append([]File(nil), files...)
	c.hasSig = true
	c.files = append([]File(nil), files...)
	c.filesAt = c.now()
	c.hasFiles = true
	c.listMu.Unlock()

	if changed {
		active := make(map[string]struct{}, len(files))
		for _, f := range files {
			active[f.URL] = struct{}{}
		}
		c.pruneFor(active)
		log.Printf("File list updated count=%d", len(files))
	}
	return changed
}

func sameFiles(a, b []File) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *Cache) pruneFor(active map[string]struct{}) {
	c.pruneDisk(active)

	c.contentMu.Lock()
	kept := c.contentOrder[:0]
	for _, url := range c.contentOrder {
		if _, ok := active[url]; ok {
			kept = append(kept, url)
			continue
		}
		if entry, present := c.content[url]; present {
			c.contentSize -= int64(len(entry.data))
			delete(c.content, url)
		}
	}
	c.contentOrder = kept
	c.contentMu.Unlock()

	c.metaMu.Lock()
	for url := range c.meta {
		if _, ok := active[url]; !ok {
			delete(c.meta, url)
		}
	}
	c.metaMu.Unlock()

	c.locMu.Lock()
	removed := 0
	for group, entry := range c.locations {
		if _, ok := active[entry.loc.FileURL]; !ok {
			delete(c.locations, group)
			removed++
		}
	}
	c.locMu.Unlock()
	if removed != 0 {
		log.Printf("Dropped %d group location entries for removed files", removed)
	}
}

// ----- raw workbook bytes -----

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) diskPath(url string) string {
	return filepath.Join(c.cfg.Dir, hashURL(url)+".xlsx")
}

// FileContent returns fresh in-memory bytes for the URL.
func (c *Cache) FileContent(url string) ([]byte, bool) {
	c.contentMu.Lock()
	defer c.contentMu.Unlock()
	entry, ok := c.content[url]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.at) > c.cfg.ContentTTL {
		c.dropContentLocked(url)
		return nil, false
	}
	return entry.data, true
}

// SetFileContent stores workbook bytes in memory, evicting the
// oldest-inserted entries when the byte budget overflows, and optionally
// mirrors them to disk for warm restarts.
func (c *Cache) SetFileContent(url string, data []byte, persist bool) {
	c.contentMu.Lock()
	if _, ok := c.content[url]; ok {
		c.dropContentLocked(url)
	}
	c.content[url] = contentEntry{at: c.now(), data: data}
	c.contentOrder = append(c.contentOrder, url)
	c.contentSize += int64(len(data))
	c.evictLocked()
	total := c.contentSize
	c.contentMu.Unlock()

	if persist {
		if err := os.WriteFile(c.diskPath(url), data, 0o644); err != nil {
			log.Printf("ERROR: Failed to persist cache file for %s: %v", url, err)
		}
	}
	log.Printf("Cached workbook url=%s size=%d persist=%v total=%d", url, len(data), persist, total)
}

// LoadFileFromDisk reads a previously persisted workbook. Promotion to
// memory is the caller's call; a disk hit must not be rewritten to disk.
func (c *Cache) LoadFileFromDisk(url string) ([]byte, bool) {
	data, err := os.ReadFile(c.diskPath(url))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("ERROR: Failed to read cached file for %s: %v", url, err)
		}
		return nil, false
	}
	return data, true
}

// Eviction is strictly oldest-insertion-first with no touch-on-read;
// re-inserting a URL moves it to the back.
func (c *Cache) evictLocked() {
	for c.contentSize > c.cfg.MaxBytes && len(c.contentOrder) > 0 {
		url := c.contentOrder[0]
		entry := c.content[url]
		c.contentOrder = c.contentOrder[1:]
		delete(c.content, url)
		c.contentSize -= int64(len(entry.data))
		log.Printf("Evicted workbook from cache url=%s size=%d remaining=%d", url, len(entry.data), c.contentSize)
	}
}

func (c *Cache) dropContentLocked(url string) {
	entry, ok := c.content[url]
	if !ok {
		return
	}
	delete(c.content, url)
	c.contentSize -= int64(len(entry.data))
	for i, u := range c.contentOrder {
		if u == url {
			c.contentOrder = append(c.contentOrder[:i], c.contentOrder[i+1:]...)
			break
		}
	}
}

func (c *Cache) pruneDisk(active map[string]struct{}) {
	if c.cfg.Dir == "" {
		return
	}
	activeHashes := make(map[string]struct{}, len(active))
	for url := range active {
		activeHashes[hashURL(url)] = struct{}{}
	}
	matches, err := filepath.Glob(filepath.Join(c.cfg.Dir, "*.xlsx"))
	if err != nil {
		return
	}
	for _, path := range matches {
		stem := filepath.Base(path)
		stem = stem[:len(stem)-len(filepath.Ext(stem))]
		if _, ok := activeHashes[stem]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Printf("ERROR: Failed to remove stale cache file %s: %v", path, err)
		}
	}
}

// PruneDisk removes persisted files for URLs absent from the current
// listing. Wired to a daily job; UpdateFileList already does the same on
// every listing change.
func (c *Cache) PruneDisk() {
	c.listMu.Lock()
	active := make(map[string]struct{}, len(c.files))
	for _, f := range c.files {
		active[f.URL] = struct{}{}
	}
	c.listMu.Unlock()
	c.pruneDisk(active)
}

// ----- sheet/group metadata -----

func (c *Cache) FileMetadata(url string) ([]SheetGroups, bool) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	entry, ok := c.meta[url]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.at) > c.cfg.MetadataTTL {
		delete(c.meta, url)
		return nil, false
	}
	return entry.sheets, true
}

func (c *Cache) SetFileMetadata(url string, sheets []SheetGroups) {
	c.metaMu.Lock()
	c.meta[url] = metaEntry{at: c.now(), sheets: sheets}
	c.metaMu.Unlock()
	log.Printf("Cached metadata url=%s sheets=%d", url, len(sheets))
}

// ----- group location shortcut -----

// GroupLocation returns the cached location for a group query. The key
// is normalized with the same rule the resolver matches with, otherwise
// lookups would silently miss.
func (c *Cache) GroupLocation(group string) (Location, bool) {
	key := NormalizeGroup(group)
	c.locMu.Lock()
	defer c.locMu.Unlock()
	entry, ok := c.locations[key]
	if !ok {
		return Location{}, false
	}
	if c.now().Sub(entry.at) > c.cfg.LocationTTL {
		delete(c.locations, key)
		return Location{}, false
	}
	return entry.loc, true
}

func (c *Cache) SetGroupLocation(group string, loc Location) {
	key := NormalizeGroup(group)
	c.locMu.Lock()
	c.locations[key] = locationEntry{at: c.now(), loc: loc}
	c.locMu.Unlock()
	log.Printf("Cached group location group=%s file=%s sheet=%s", key, loc.FileURL, loc.Sheet)
}

// ----- watchers -----

func (c *Cache) AddWatcher(chatID int64) {
	c.watchMu.Lock()
	c.watchers[chatID] = struct{}{}
	c.watchMu.Unlock()
}

func (c *Cache) RemoveWatcher(chatID int64) {
	c.watchMu.Lock()
	delete(c.watchers, chatID)
	c.watchMu.Unlock()
}

func (c *Cache) Watchers() []int64 {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	ids := make([]int64, 0, len(c.watchers))
	for id := range c.watchers {
		ids = append(ids, id)
	}
	return ids
}

// ----- stats -----

// Stats is a point-in-time snapshot for the status endpoint and the
// periodic stats log line.
type Stats struct {
	Files           int   `json:"files"`
	ContentEntries  int   `json:"content_entries"`
	ContentBytes    int64 `json:"content_bytes"`
	MetadataEntries int   `json:"metadata_entries"`
	GroupLocations  int   `json:"group_locations"`
	Watchers        int   `json:"watchers"`
}

func (c *Cache) Stats() Stats {
	var s Stats
	c.listMu.Lock()
	s.Files = len(c.files)
	c.listMu.Unlock()
	c.contentMu.Lock()
	s.ContentEntries = len(c.content)
	s.ContentBytes = c.contentSize
	c.contentMu.Unlock()
	c.metaMu.Lock()
	s.MetadataEntries = len(c.meta)
	c.metaMu.Unlock()
	c.locMu.Lock()
	s.GroupLocations = len(c.locations)
	c.locMu.Unlock()
	c.watchMu.Lock()
	s.Watchers = len(c.watchers)
	c.watchMu.Unlock()
	return s
}
