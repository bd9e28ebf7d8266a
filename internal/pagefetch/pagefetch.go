// Package pagefetch turns a web page URL into the plain text a run works on.
package pagefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/logger"
)

const (
	DefaultTimeout = 15 * time.Second

	// MaxBodyBytes caps how much of a page is read.
	MaxBodyBytes = 5 << 20

	// TemplateLimit is the number of characters of page text kept for
	// TEMPLATE runs.
	TemplateLimit  = 5000
	TruncationNote = "\n\n[Content truncated for template generation...]"

	userAgent = "studyspark/1.0 (+https://github.com/valpere/studyspark)"
)

var ErrFetch = errors.New("unable to fetch page")

// Elements whose text never belongs to the page content.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Nav:      true,
	atom.Iframe:   true,
	atom.Form:     true,
}

var urlRe = regexp.MustCompile(`(?i)^https?://\S+$`)

// IsURL reports whether input, trimmed, is a single http(s) URL.
func IsURL(input string) bool {
	return urlRe.MatchString(strings.TrimSpace(input))
}

type Page struct {
	URL   string
	Title string
	Text  string
}

type Fetcher struct {
	client *http.Client
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads rawURL and extracts its title and main text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, rawURL, resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, MaxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrFetch, rawURL, err)
	}

	page, err := Extract(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrFetch, rawURL, err)
	}
	page.URL = rawURL
	if page.Title == "" {
		page.Title = rawURL
	}
	return page, nil
}

// Extract parses an HTML document and returns its title and the text of
// its main content: the first <main>, else the first <article>, else
// <body>. Navigation, scripts and similar elements are dropped and
// whitespace is collapsed.
func Extract(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	if title := find(doc, atom.Title); title != nil {
		page.Title = collapse(textOf(title, false))
	}

	root := find(doc, atom.Main)
	if root == nil {
		root = find(doc, atom.Article)
	}
	if root == nil {
		root = find(doc, atom.Body)
	}
	if root == nil {
		root = doc
	}
	page.Text = collapse(textOf(root, true))
	return page, nil
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node, skip bool) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip && skipped[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Resolve prepares run input. Input that is not a URL is returned as is.
// A URL is fetched and replaced by the page text, with the page title and
// URL recorded in the returned params. For TEMPLATE the text is truncated
// to TemplateLimit characters, and a failed fetch falls back to asking for
// a template based on the URL alone. For other actions a failed fetch is an
// error.
func (f *Fetcher) Resolve(ctx context.Context, a action.Action, input string, p action.Params) (string, action.Params, error) {
	if !IsURL(input) {
		return input, p, nil
	}
	rawURL := strings.TrimSpace(input)
	log := logger.FromContext(ctx).With("url", rawURL)

	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		if a != action.Template {
			return "", p, err
		}
		log.Warn("Page fetch failed, using the URL as template input", "error", err)
		p.URL = rawURL
		return "Create a website template based on this URL: " + rawURL, p, nil
	}

	p.Title, p.URL = page.Title, page.URL
	text := page.Text
	if a == action.Template {
		text = TruncateForTemplate(text)
	}
	log.Info("Fetched page", "title", page.Title, "chars", utf8.RuneCountInString(text))
	return text, p, nil
}

// TruncateForTemplate keeps the first TemplateLimit characters of text and
// appends TruncationNote when anything was cut.
func TruncateForTemplate(text string) string {
	if utf8.RuneCountInString(text) <= TemplateLimit {
		return text
	}
	return string([]rune(text)[:TemplateLimit]) + TruncationNote
}
