package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// CrawlToolName is the registry name of the built-in page-fetch tool.
const CrawlToolName = "crawl"

// crawlMaxBody bounds how much of a page is read; pages past this are cut.
const crawlMaxBody = 2 << 20 // 2 MiB

// CrawlArgs are the parameters of the crawl tool.
type CrawlArgs struct {
	URL      string `json:"url" jsonschema:"required,description=The page URL to fetch"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"description=Cap on extracted text length"`
}

// CrawlTool fetches a page and extracts its title, readable text, and links.
type CrawlTool struct {
	client  *http.Client
	timeout time.Duration
}

// NewCrawlTool creates the built-in crawl tool. A nil client uses
// http.DefaultClient; timeout <= 0 disables the per-call deadline.
func NewCrawlTool(client *http.Client, timeout time.Duration) *CrawlTool {
	if client == nil {
		client = http.DefaultClient
	}
	return &CrawlTool{client: client, timeout: timeout}
}

func (t *CrawlTool) Name() string { return CrawlToolName }

func (t *CrawlTool) Description() string {
	return "Fetch a web page and extract its title, readable text, and outbound links."
}

func (t *CrawlTool) Schema() string { return reflectSchema[CrawlArgs]() }

func (t *CrawlTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	rawURL, _ := args["url"].(string)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Fail(fmt.Errorf("crawl requires an http(s) URL, got %q", rawURL)), nil
	}
	maxChars := intArg(args, "max_chars", 8000)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Fail(err), nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Tool: CrawlToolName, Elapsed: time.Since(start)}
		}
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, Transientf("crawl %s returned %d", rawURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Fail(fmt.Errorf("crawl %s returned %d", rawURL, resp.StatusCode)), nil
	}

	page, err := extractPage(io.LimitReader(resp.Body, crawlMaxBody), parsed)
	if err != nil {
		return Fail(fmt.Errorf("parse %s: %w", rawURL, err)), nil
	}
	text := page.text
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars] + "\n[truncated]"
	}

	var sb strings.Builder
	if page.title != "" {
		sb.WriteString(page.title + "\n\n")
	}
	sb.WriteString(text)
	return Ok(sb.String()).
		WithMeta("url", rawURL).
		WithMeta("title", page.title).
		WithMeta("links", page.links), nil
}

type crawledPage struct {
	title string
	text  string
	links []string
}

// extractPage walks the HTML tokenizer, collecting the title, visible text
// from content elements, and absolutized anchor hrefs. script and style
// subtrees are skipped.
func extractPage(r io.Reader, base *url.URL) (*crawledPage, error) {
	tokenizer := html.NewTokenizer(r)
	page := &crawledPage{}
	var (
		inTitle  bool
		skipped  int // depth inside script/style/noscript
		parts    []string
		seenLink = map[string]bool{}
	)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				page.text = strings.Join(parts, "\n")
				return page, nil
			}
			return nil, tokenizer.Err()
		case html.StartTagToken:
			tok := tokenizer.Token()
			switch tok.Data {
			case "title":
				inTitle = true
			case "script", "style", "noscript":
				skipped++
			case "a":
				for _, attr := range tok.Attr {
					if attr.Key != "href" {
						continue
					}
					ref, err := url.Parse(attr.Val)
					if err != nil {
						continue
					}
					abs := base.ResolveReference(ref).String()
					if !seenLink[abs] {
						seenLink[abs] = true
						page.links = append(page.links, abs)
					}
				}
			}
		case html.EndTagToken:
			tok := tokenizer.Token()
			switch tok.Data {
			case "title":
				inTitle = false
			case "script", "style", "noscript":
				if skipped > 0 {
					skipped--
				}
			}
		case html.TextToken:
			if skipped > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if inTitle {
				if page.title == "" {
					page.title = text
				}
				continue
			}
			parts = append(parts, text)
		}
	}
}
