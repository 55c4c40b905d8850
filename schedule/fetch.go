package schedule

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// File identifies one published spreadsheet on the listing page.
// Two files are the same file iff both URL and Title match.
type File struct {
	Title string
	URL   string
}

// NetworkError wraps any failure to reach the schedule site. Transient
// errors (connect/read timeouts, refused connections) are worth retrying
// on the next cycle; HTTP status errors are not.
type NetworkError struct {
	URL       string
	Transient bool
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return "fetch " + e.URL + ": network error"
	}
	return "fetch " + e.URL + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsTransientNetErr reports whether err is a NetworkError caused by a
// timeout or connection failure rather than a bad HTTP response.
func IsTransientNetErr(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Transient
}

// Fetcher loads the department listing page and downloads schedule files.
// It keeps no state beyond the HTTP client; all caching lives in Cache.
type Fetcher struct {
	baseURL string
	client  *http.Client
}

// NewFetcher builds a fetcher for the given listing page URL. The read
// timeout bounds the whole request and should be much larger than the
// connect timeout: the origin serves multi-megabyte workbooks slowly.
func NewFetcher(baseURL string, connectTimeout, readTimeout time.Duration) *Fetcher {
	return &Fetcher{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
		},
	}
}

// ListFiles fetches the listing page and returns every linked spreadsheet.
// Relative hrefs are resolved against the page URL; the title is taken
// from the anchor text, falling back to the last path segment.
func (f *Fetcher) ListFiles(ctx context.Context) ([]File, error) {
	body, err := f.get(ctx, f.baseURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, errors.Wrap(err, "parse listing page")
	}

	base, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}

	var files []File
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" {
			return
		}
		lower := strings.ToLower(href)
		if !strings.HasSuffix(lower, ".xls") && !strings.HasSuffix(lower, ".xlsx") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		title := strings.TrimSpace(a.Text())
		if title == "" {
			segments := strings.Split(ref.Path, "/")
			title = segments[len(segments)-1]
		}
		files = append(files, File{Title: title, URL: abs})
	})
	return files, nil
}

// Download GETs the file's URL and returns the raw bytes.
func (f *Fetcher) Download(ctx context.Context, file File) ([]byte, error) {
	body, err := f.get(ctx, file.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &NetworkError{URL: file.URL, Transient: isTimeout(err), Err: err}
	}
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Transient: isTimeout(err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &NetworkError{URL: rawURL, Err: errors.New("HTTP status " + resp.Status)}
	}
	return resp.Body, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
