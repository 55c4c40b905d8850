package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) (*Cache, *time.Time) {
	t.Helper()
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(CacheConfig{
		Dir:         t.TempDir(),
		ContentTTL:  30 * time.Minute,
		MetadataTTL: time.Hour,
		LocationTTL: 2 * time.Hour,
		ListTTL:     4 * time.Hour,
		MaxBytes:    1024,
	})
	c.now = func() time.Time { return now }
	return c, &now
}

func TestContentTTLBoundary(t *testing.T) {
	c, now := testCache(t)
	c.SetFileContent("u", []byte("data"), false)

	*now = now.Add(30*time.Minute - time.Second)
	_, ok := c.FileContent("u")
	assert.True(t, ok)

	*now = now.Add(2 * time.Second)
	_, ok = c.FileContent("u")
	assert.False(t, ok)
}

func TestByteBudgetEvictsOldestInserted(t *testing.T) {
	c, now := testCache(t)
	c.cfg.MaxBytes = 10

	c.SetFileContent("a", []byte("aaaa"), false)
	*now = now.Add(time.Minute)
	c.SetFileContent("b", []byte("bbbb"), false)
	*now = now.Add(time.Minute)

	// Reading "a" must not protect it: eviction is insertion-order,
	// not LRU.
	_, ok := c.FileContent("a")
	require.True(t, ok)

	c.SetFileContent("c", []byte("cccc"), false)

	_, ok = c.FileContent("a")
	assert.False(t, ok, "oldest-inserted entry must be evicted")
	_, ok = c.FileContent("b")
	assert.True(t, ok)
	_, ok = c.FileContent("c")
	assert.True(t, ok)
	assert.LessOrEqual(t, c.Stats().ContentBytes, int64(10))
}

func TestSetFileContentReplaceAccountsSize(t *testing.T) {
	c, _ := testCache(t)
	c.SetFileContent("u", []byte("aaaa"), false)
	c.SetFileContent("u", []byte("bb"), false)
	assert.Equal(t, int64(2), c.Stats().ContentBytes)
}

func TestDiskPersistenceRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	c.SetFileContent("http://x/file.xlsx", []byte("payload"), true)

	data, ok := c.LoadFileFromDisk("http://x/file.xlsx")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)

	path := c.diskPath("http://x/file.xlsx")
	assert.Equal(t, ".xlsx", filepath.Ext(path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestUpdateFileListSignature(t *testing.T) {
	c, _ := testCache(t)
	files := []File{{Title: "Расписание от 01.09.2025", URL: "http://x/a.xlsx"}}

	_, hadSig := c.Signature()
	assert.False(t, hadSig)

	assert.True(t, c.UpdateFileList(files), "first listing counts as a change")
	assert.False(t, c.UpdateFileList(files), "identical listing is not a change")

	// A title change alone changes the signature.
	renamed := []File{{Title: "Расписание от 08.09.2025", URL: "http://x/a.xlsx"}}
	assert.True(t, c.UpdateFileList(renamed))
}

func TestListingChangeEvictsVanishedURLs(t *testing.T) {
	c, _ := testCache(t)
	old := []File{{Title: "a", URL: "http://x/a.xlsx"}}
	c.UpdateFileList(old)

	c.SetFileContent("http://x/a.xlsx", []byte("bytes"), true)
	c.SetFileMetadata("http://x/a.xlsx", []SheetGroups{{Sheet: "Физика", Groups: []string{"06-451"}}})
	c.SetGroupLocation("06-451", Location{FileURL: "http://x/a.xlsx", Sheet: "Физика", Group: "06-451"})

	c.UpdateFileList([]File{{Title: "b", URL: "http://x/b.xlsx"}})

	_, ok := c.FileContent("http://x/a.xlsx")
	assert.False(t, ok)
	_, ok = c.FileMetadata("http://x/a.xlsx")
	assert.False(t, ok)
	_, ok = c.GroupLocation("06-451")
	assert.False(t, ok, "shortcut pointing at a removed URL must be gone")
	_, ok = c.LoadFileFromDisk("http://x/a.xlsx")
	assert.False(t, ok, "disk copy of a removed file must be pruned")
}

func TestFileListTTLAndStale(t *testing.T) {
	c, now := testCache(t)
	c.UpdateFileList([]File{{Title: "a", URL: "u"}})

	_, ok := c.FileList()
	require.True(t, ok)

	*now = now.Add(5 * time.Hour)
	_, ok = c.FileList()
	assert.False(t, ok)
	stale, ok := c.FileListStale()
	require.True(t, ok)
	assert.Len(t, stale, 1)
}

func TestGroupLocationNormalizedKey(t *testing.T) {
	c, _ := testCache(t)
	c.SetGroupLocation("06 - 451", Location{FileURL: "u", Sheet: "s", Group: "06-451"})

	loc, ok := c.GroupLocation("06-451")
	require.True(t, ok)
	assert.Equal(t, "06-451", loc.Group)

	// Whitespace-only variants hit the same key; a hyphenless query is a
	// different group.
	_, ok = c.GroupLocation(" 06-451 ")
	assert.True(t, ok)
	_, ok = c.GroupLocation("06451")
	assert.False(t, ok)
}

func TestGroupLocationTTLBoundary(t *testing.T) {
	c, now := testCache(t)
	c.SetGroupLocation("06-451", Location{FileURL: "u", Sheet: "s", Group: "06-451"})

	*now = now.Add(2*time.Hour - time.Second)
	_, ok := c.GroupLocation("06-451")
	assert.True(t, ok)

	*now = now.Add(2 * time.Second)
	_, ok = c.GroupLocation("06-451")
	assert.False(t, ok)
}

func TestMetadataTTLOutlivesContentTTL(t *testing.T) {
	c, now := testCache(t)
	c.SetFileContent("u", []byte("x"), false)
	c.SetFileMetadata("u", []SheetGroups{{Sheet: "s", Groups: []string{"g"}}})

	*now = now.Add(45 * time.Minute)
	_, ok := c.FileContent("u")
	assert.False(t, ok)
	meta, ok := c.FileMetadata("u")
	require.True(t, ok)
	assert.Equal(t, "s", meta[0].Sheet)
}

func TestWatchers(t *testing.T) {
	c, _ := testCache(t)
	c.AddWatcher(1)
	c.AddWatcher(2)
	c.AddWatcher(1)
	assert.ElementsMatch(t, []int64{1, 2}, c.Watchers())

	c.RemoveWatcher(1)
	assert.Equal(t, []int64{2}, c.Watchers())
	c.RemoveWatcher(42)
	assert.Equal(t, []int64{2}, c.Watchers())
}
