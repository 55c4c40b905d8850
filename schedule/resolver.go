package schedule

import (
	"context"
	"log"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Match is a successfully resolved schedule: the rendered text plus
// where the group was found.
type Match struct {
	Text  string
	File  File
	Sheet string
	Group string
}

// Resolver drives the fetcher, the workbook parser and the cache to
// answer "schedule for this group". Workbook parsing is CPU-bound, so a
// weighted semaphore caps how many workbooks are parsed at once; request
// handling itself stays I/O bound.
type Resolver struct {
	fetcher  *Fetcher
	cache    *Cache
	parseSem *semaphore.Weighted
}

func NewResolver(fetcher *Fetcher, cache *Cache, maxParallelParse int64) *Resolver {
	if maxParallelParse < 1 {
		maxParallelParse = 1
	}
	return &Resolver{
		fetcher:  fetcher,
		cache:    cache,
		parseSem: semaphore.NewWeighted(maxParallelParse),
	}
}

// EnsureFileList returns the current listing: cache if fresh, otherwise
// a live fetch. When the site is unreachable a stale cached listing is
// better than failing the request.
func (r *Resolver) EnsureFileList(ctx context.Context) ([]File, error) {
	if files, ok := r.cache.FileList(); ok {
		return files, nil
	}
	files, err := r.fetcher.ListFiles(ctx)
	if err != nil {
		if stale, ok := r.cache.FileListStale(); ok {
			log.Printf("WARN: Listing fetch failed, serving stale list: %v", err)
			return stale, nil
		}
		return nil, errors.Wrap(err, "list schedule files")
	}
	r.cache.UpdateFileList(files)
	return files, nil
}

// FindGroupSchedule locates the group's column across the published
// files and returns its formatted schedule, or nil when no file carries
// the group. The location shortcut is tried first; any failure on that
// path falls through to the full scan instead of failing the request.
func (r *Resolver) FindGroupSchedule(ctx context.Context, files []File, groupQuery, dayFilter string, currentWeek int) (*Match, error) {
	target := NormalizeGroup(groupQuery)

	if match := r.tryCachedLocation(ctx, files, groupQuery, dayFilter, currentWeek); match != nil {
		return match, nil
	}

	for _, file := range files {
		meta, data := r.fileMetadata(ctx, file)
		if meta == nil {
			continue
		}

		sheet, actual := "", ""
		for _, sg := range meta {
			if found := matchGroup(sg.Groups, target); found != "" {
				sheet, actual = sg.Sheet, found
				break
			}
		}
		if actual == "" {
			continue
		}

		if data == nil {
			data = r.FileBytes(ctx, file)
			if data == nil {
				continue
			}
		}

		lessons, err := r.extractWithRetry(ctx, data, sheet, actual, dayFilter, currentWeek)
		if err != nil {
			log.Printf("ERROR: Extraction failed file=%s sheet=%s group=%s: %v", file.URL, sheet, actual, err)
			continue
		}
		if len(lessons) == 0 {
			continue
		}

		r.cache.SetGroupLocation(groupQuery, Location{FileURL: file.URL, Sheet: sheet, Group: actual})
		log.Printf("Schedule found group=%s sheet=%s file=%s", actual, sheet, file.Title)
		return &Match{Text: FormatLessons(lessons), File: file, Sheet: sheet, Group: actual}, nil
	}
	return nil, nil
}

func (r *Resolver) tryCachedLocation(ctx context.Context, files []File, groupQuery, dayFilter string, currentWeek int) *Match {
	loc, ok := r.cache.GroupLocation(groupQuery)
	if !ok {
		return nil
	}
	var file *File
	for i := range files {
		if files[i].URL == loc.FileURL {
			file = &files[i]
			break
		}
	}
	if file == nil {
		return nil
	}
	data := r.FileBytes(ctx, *file)
	if data == nil {
		return nil
	}
	lessons, err := r.extractWithRetry(ctx, data, loc.Sheet, loc.Group, dayFilter, currentWeek)
	if err != nil {
		log.Printf("WARN: Cached location failed group=%s file=%s sheet=%s: %v", loc.Group, file.URL, loc.Sheet, err)
		return nil
	}
	if len(lessons) == 0 {
		return nil
	}
	log.Printf("Schedule found via location cache group=%s sheet=%s file=%s", loc.Group, loc.Sheet, file.Title)
	return &Match{Text: FormatLessons(lessons), File: *file, Sheet: loc.Sheet, Group: loc.Group}
}

// Week annotations are frequently absent, meaning "every week", and an
// empty week-filtered result is indistinguishable from "no classes", so
// an empty result is retried unfiltered.
func (r *Resolver) extractWithRetry(ctx context.Context, data []byte, sheet, group, dayFilter string, currentWeek int) ([]Lesson, error) {
	if err := r.parseSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.parseSem.Release(1)

	lessons, err := ExtractGroupSchedule(data, sheet, group, dayFilter, currentWeek)
	if err != nil {
		return nil, err
	}
	if len(lessons) == 0 && currentWeek != 0 {
		return ExtractGroupSchedule(data, sheet, group, dayFilter, 0)
	}
	return lessons, nil
}

// fileMetadata returns the sheet→groups metadata for a file, computing
// and caching it on miss. The second return value carries the workbook
// bytes when they had to be loaded anyway, sparing a second cache round.
func (r *Resolver) fileMetadata(ctx context.Context, file File) ([]SheetGroups, []byte) {
	if meta, ok := r.cache.FileMetadata(file.URL); ok {
		return meta, nil
	}

	data := r.FileBytes(ctx, file)
	if data == nil {
		return nil, nil
	}

	if err := r.parseSem.Acquire(ctx, 1); err != nil {
		return nil, nil
	}
	defer r.parseSem.Release(1)

	sheets, err := ListSheets(data)
	if err != nil {
		log.Printf("ERROR: Failed to list sheets file=%s: %v", file.URL, err)
		return nil, nil
	}
	meta := make([]SheetGroups, 0, len(sheets))
	for _, sheet := range sheets {
		groups, err := ListGroups(data, sheet)
		if err != nil {
			log.Printf("ERROR: Failed to list groups file=%s sheet=%s: %v", file.URL, sheet, err)
			continue
		}
		meta = append(meta, SheetGroups{Sheet: sheet, Groups: groups})
	}
	if len(meta) == 0 {
		return nil, data
	}
	r.cache.SetFileMetadata(file.URL, meta)
	return meta, data
}

// FileBytes obtains a file's normalized bytes: memory, then disk
// (promoted to memory without a disk rewrite), then a download that is
// normalized and cached to both. Network failure yields nil; the caller
// degrades to "this file is unavailable" instead of aborting.
func (r *Resolver) FileBytes(ctx context.Context, file File) []byte {
	if data, ok := r.cache.FileContent(file.URL); ok {
		return data
	}
	if data, ok := r.cache.LoadFileFromDisk(file.URL); ok {
		r.cache.SetFileContent(file.URL, data, false)
		return data
	}

	raw, err := r.fetcher.Download(ctx, file)
	if err != nil {
		if IsTransientNetErr(err) {
			log.Printf("WARN: Download timed out url=%s: %v", file.URL, err)
		} else {
			log.Printf("ERROR: Download failed url=%s: %v", file.URL, err)
		}
		return nil
	}

	if err := r.parseSem.Acquire(ctx, 1); err != nil {
		return nil
	}
	processed, err := Normalize(raw)
	r.parseSem.Release(1)
	if err != nil {
		log.Printf("ERROR: Failed to normalize workbook url=%s: %v", file.URL, err)
		return nil
	}
	r.cache.SetFileContent(file.URL, processed, true)
	return processed
}

func matchGroup(groups []string, target string) string {
	for _, group := range groups {
		if NormalizeGroup(group) == target {
			return group
		}
	}
	return ""
}
