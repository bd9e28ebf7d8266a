package pagefetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/studyspark/internal/action"
)

const article = `<!doctype html>
<html>
<head><title>  Sparrows of Europe </title><style>body { color: red }</style></head>
<body>
  <header>Site header</header>
  <nav><a href="/">Home</a></nav>
  <main>
    <h1>Sparrows</h1>
    <p>House sparrows   live near
       people.</p>
    <script>track()</script>
    <form><input value="search"></form>
    <p>They eat seeds.</p>
  </main>
  <footer>Copyright</footer>
</body>
</html>`

func TestExtract_PrefersMain(t *testing.T) {
	page, err := Extract(strings.NewReader(article))
	require.NoError(t, err)

	assert.Equal(t, "Sparrows of Europe", page.Title)
	assert.Equal(t, "Sparrows House sparrows live near people. They eat seeds.", page.Text)
}

func TestExtract_FallsBack(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "article",
			html: `<body><div>Sidebar</div><article><p>Article body.</p></article></body>`,
			want: "Article body.",
		},
		{
			name: "body",
			html: `<body><nav>Menu</nav><div>Just a body.</div><noscript>Enable JS</noscript></body>`,
			want: "Just a body.",
		},
		{
			name: "fragment",
			html: `plain text`,
			want: "plain text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Extract(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, page.Text)
			assert.Empty(t, page.Title)
		})
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/page"))
	assert.True(t, IsURL("  HTTP://example.com\n"))
	assert.False(t, IsURL("ftp://example.com"))
	assert.False(t, IsURL("see https://example.com for more"))
	assert.False(t, IsURL("just text"))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(article))
		case "/untitled":
			_, _ = w.Write([]byte(`<body><p>No title here.</p></body>`))
		case "/latin1":
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write([]byte("<body><p>Caf\xe9 cr\xe8me</p></body>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(time.Second)
	ctx := context.Background()

	page, err := f.Fetch(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "Sparrows of Europe", page.Title)
	assert.Equal(t, srv.URL+"/ok", page.URL)

	page, err = f.Fetch(ctx, srv.URL+"/untitled")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/untitled", page.Title, "title defaults to the URL")

	page, err = f.Fetch(ctx, srv.URL+"/latin1")
	require.NoError(t, err)
	assert.Equal(t, "Café crème", page.Text)

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrFetch)
}

func TestResolve(t *testing.T) {
	long := strings.Repeat("x", TemplateLimit+100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			_, _ = w.Write([]byte(article))
		case "/long":
			_, _ = w.Write([]byte("<html><head><title>Long</title></head><body>" + long + "</body></html>"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := New(time.Second)
	ctx := context.Background()

	t.Run("plain text passes through", func(t *testing.T) {
		text, p, err := f.Resolve(ctx, action.Summarize, "Just some text to summarize.", action.Params{TargetLanguage: "French"})
		require.NoError(t, err)
		assert.Equal(t, "Just some text to summarize.", text)
		assert.Equal(t, "French", p.TargetLanguage)
	})

	t.Run("url is fetched", func(t *testing.T) {
		text, p, err := f.Resolve(ctx, action.Summarize, srv.URL+"/article", action.Params{})
		require.NoError(t, err)
		assert.Contains(t, text, "They eat seeds.")
		assert.Equal(t, "Sparrows of Europe", p.Title)
		assert.Equal(t, srv.URL+"/article", p.URL)
	})

	t.Run("template text is truncated", func(t *testing.T) {
		text, _, err := f.Resolve(ctx, action.Template, srv.URL+"/long", action.Params{})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(text, TruncationNote))
		assert.Equal(t, TemplateLimit+len(TruncationNote), len(text))
	})

	t.Run("summaries are not truncated", func(t *testing.T) {
		text, _, err := f.Resolve(ctx, action.Summarize, srv.URL+"/long", action.Params{})
		require.NoError(t, err)
		assert.Equal(t, long, text)
	})

	t.Run("template falls back to the url", func(t *testing.T) {
		text, p, err := f.Resolve(ctx, action.Template, srv.URL+"/broken", action.Params{})
		require.NoError(t, err)
		assert.Equal(t, "Create a website template based on this URL: "+srv.URL+"/broken", text)
		assert.Equal(t, srv.URL+"/broken", p.URL)
	})

	t.Run("other actions fail", func(t *testing.T) {
		_, _, err := f.Resolve(ctx, action.Summarize, srv.URL+"/broken", action.Params{})
		assert.ErrorIs(t, err, ErrFetch)
	})
}

func TestTruncateForTemplate(t *testing.T) {
	short := "short page"
	assert.Equal(t, short, TruncateForTemplate(short))

	exact := strings.Repeat("é", TemplateLimit)
	assert.Equal(t, exact, TruncateForTemplate(exact))

	over := strings.Repeat("é", TemplateLimit+1)
	got := TruncateForTemplate(over)
	assert.Equal(t, strings.Repeat("é", TemplateLimit)+TruncationNote, got)
}
