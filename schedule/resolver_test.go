package schedule

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scheduleSite is a fake origin: a listing page plus workbook downloads,
// counting every download per path.
type scheduleSite struct {
	mu        sync.Mutex
	workbooks map[string][]byte
	order     []string
	titles    map[string]string
	downloads map[string]int
	srv       *httptest.Server
}

func newScheduleSite(t *testing.T) *scheduleSite {
	t.Helper()
	site := &scheduleSite{
		workbooks: make(map[string][]byte),
		titles:    make(map[string]string),
		downloads: make(map[string]int),
	}
	site.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		defer site.mu.Unlock()
		if r.URL.Path == "/listing" {
			fmt.Fprint(w, "<html><body>")
			for _, name := range site.order {
				fmt.Fprintf(w, `<a href="/%s">%s</a>`, name, site.titles[name])
			}
			fmt.Fprint(w, "</body></html>")
			return
		}
		name := r.URL.Path[1:]
		data, ok := site.workbooks[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		site.downloads[name]++
		w.Write(data)
	}))
	t.Cleanup(site.srv.Close)
	return site
}

func (s *scheduleSite) publish(name, title string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workbooks[name]; !ok {
		s.order = append(s.order, name)
	}
	s.workbooks[name] = data
	s.titles[name] = title
}

func (s *scheduleSite) unpublish(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workbooks, name)
	delete(s.titles, name)
	order := s.order[:0]
	for _, n := range s.order {
		if n != name {
			order = append(order, n)
		}
	}
	s.order = order
}

func (s *scheduleSite) downloadCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads[name]
}

func (s *scheduleSite) fileURL(name string) string {
	return s.srv.URL + "/" + name
}

func newTestResolver(t *testing.T, site *scheduleSite) (*Resolver, *Cache) {
	t.Helper()
	cache := NewCache(CacheConfig{
		Dir:         t.TempDir(),
		ContentTTL:  30 * time.Minute,
		MetadataTTL: time.Hour,
		LocationTTL: 2 * time.Hour,
		ListTTL:     4 * time.Hour,
		MaxBytes:    64 * 1024 * 1024,
	})
	fetcher := NewFetcher(site.srv.URL+"/listing", time.Second, 10*time.Second)
	return NewResolver(fetcher, cache, 2), cache
}

func TestResolverFindsGroupAndCachesLocation(t *testing.T) {
	site := newScheduleSite(t)
	site.publish("a.xlsx", "Расписание от 01.09.2025", physicsWorkbook(t, true))
	resolver, cache := newTestResolver(t, site)
	ctx := context.Background()

	files, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	match, err := resolver.FindGroupSchedule(ctx, files, "06 - 451", "", 0)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "06-451", match.Group)
	assert.Equal(t, "Физика", match.Sheet)
	assert.Equal(t, site.fileURL("a.xlsx"), match.File.URL)
	assert.Contains(t, match.Text, "📅 Понедельник")
	assert.Contains(t, match.Text, "09:00-10:30 — • <b>Квантовая механика</b>")

	loc, ok := cache.GroupLocation("06 - 451")
	require.True(t, ok, "successful scan must populate the location shortcut")
	assert.Equal(t, Location{FileURL: site.fileURL("a.xlsx"), Sheet: "Физика", Group: "06-451"}, loc)

	// Repeat lookups ride the caches: no further downloads.
	match2, err := resolver.FindGroupSchedule(ctx, files, "06-451", "", 0)
	require.NoError(t, err)
	require.NotNil(t, match2)
	assert.Equal(t, 1, site.downloadCount("a.xlsx"))
}

func TestResolverUnknownGroup(t *testing.T) {
	site := newScheduleSite(t)
	site.publish("a.xlsx", "Расписание", physicsWorkbook(t, false))
	resolver, _ := newTestResolver(t, site)
	ctx := context.Background()

	files, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)

	match, err := resolver.FindGroupSchedule(ctx, files, "07-123", "", 0)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolverQueryWithSpaceDoesNotMatchHyphenatedHeader(t *testing.T) {
	site := newScheduleSite(t)
	site.publish("a.xlsx", "Расписание", physicsWorkbook(t, false))
	resolver, _ := newTestResolver(t, site)
	ctx := context.Background()

	files, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)

	// NormalizeGroup strips whitespace but never conjures hyphens:
	// "06 451" is not the group "06-451".
	match, err := resolver.FindGroupSchedule(ctx, files, "06 451", "", 0)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolverSkipsMalformedFile(t *testing.T) {
	site := newScheduleSite(t)
	site.publish("broken.xlsx", "Битый файл", []byte("this is not a workbook"))
	site.publish("a.xlsx", "Расписание", physicsWorkbook(t, false))
	resolver, _ := newTestResolver(t, site)
	ctx := context.Background()

	files, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)

	match, err := resolver.FindGroupSchedule(ctx, files, "06-451", "", 0)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, site.fileURL("a.xlsx"), match.File.URL)
}

func TestResolverWeekFilterRetry(t *testing.T) {
	site := newScheduleSite(t)
	site.publish("a.xlsx", "Расписание", physicsWorkbook(t, false))
	resolver, _ := newTestResolver(t, site)
	ctx := context.Background()

	files, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)

	// 06-452 has no week annotations anywhere; a week-filtered request
	// still returns its schedule via the unconditional blocks.
	match, err := resolver.FindGroupSchedule(ctx, files, "06-452", "", 17)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Contains(t, match.Text, "Астрофизика")
}

func TestResolverShortcutSurvivesStaleLocationFile(t *testing.T) {
	site := newScheduleSite(t)
	site.publish("a.xlsx", "Расписание", physicsWorkbook(t, false))
	resolver, cache := newTestResolver(t, site)
	ctx := context.Background()

	// A shortcut pointing at a URL absent from the current listing is
	// ignored and the scan still answers.
	cache.SetGroupLocation("06-451", Location{FileURL: site.fileURL("gone.xlsx"), Sheet: "Физика", Group: "06-451"})

	files, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)
	match, err := resolver.FindGroupSchedule(ctx, files, "06-451", "", 0)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, site.fileURL("a.xlsx"), match.File.URL)
}

func TestResolverPromotesDiskCacheWithoutDownload(t *testing.T) {
	site := newScheduleSite(t)
	site.publish("a.xlsx", "Расписание", physicsWorkbook(t, false))
	resolver, cache := newTestResolver(t, site)
	ctx := context.Background()

	files, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)

	match, err := resolver.FindGroupSchedule(ctx, files, "06-451", "", 0)
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, 1, site.downloadCount("a.xlsx"))

	// Drop the in-memory copy; the disk copy must serve the next lookup.
	cache.contentMu.Lock()
	cache.content = make(map[string]contentEntry)
	cache.contentOrder = nil
	cache.contentSize = 0
	cache.contentMu.Unlock()

	match, err = resolver.FindGroupSchedule(ctx, files, "06-451", "", 0)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 1, site.downloadCount("a.xlsx"), "disk hit must not re-download")
}

func TestEnsureFileListServesStaleOnNetworkFailure(t *testing.T) {
	site := newScheduleSite(t)
	site.publish("a.xlsx", "Расписание", physicsWorkbook(t, false))
	resolver, cache := newTestResolver(t, site)
	ctx := context.Background()

	files, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	// Expire the listing and take the origin down.
	base := time.Now()
	cache.now = func() time.Time { return base.Add(10 * time.Hour) }
	site.srv.Close()

	stale, err := resolver.EnsureFileList(ctx)
	require.NoError(t, err)
	assert.Equal(t, files, stale)
}
