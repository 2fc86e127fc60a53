package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/readmit/internal/types"
)

func listingPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"search-results\">")
	for _, id := range ids {
		fmt.Fprintf(&b, `<article class="full-docsum"><div class="docsum-wrap"><div class="docsum-content">
			<a class="docsum-title" href="/%s/">  Study %s on
			readmission </a>
			<div class="docsum-citation">J Hosp Med. 2023.</div>
		</div></div></article>`, id, id)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func articlePage(title, abstract string) string {
	return fmt.Sprintf(`<html><body>
		<h1 class="heading-title"> %s </h1>
		<div class="abstract" id="abstract">
			<div class="abstract-content selected" id="eng-abstract">
				<p>%s</p>
			</div>
		</div>
	</body></html>`, title, abstract)
}

// pubmedMock serves a listing at "/" and article pages at "/<id>/".
func pubmedMock(t *testing.T, listing string, articles map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/" {
			w.Write([]byte(listing))
			return
		}
		page, ok := articles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestScraperConfig(t *testing.T) {
	s, err := NewWithConfig(ScraperConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, s.config.BaseURL)
	assert.Equal(t, 3, s.Limit())
	assert.Equal(t, DefaultPlaceholder, s.config.Placeholder)

	_, err = NewWithConfig(ScraperConfig{QueryTemplate: "no placeholder"})
	assert.Error(t, err)

	_, err = NewWithConfig(ScraperConfig{Limit: -1})
	assert.Error(t, err)

	_, err = NewWithConfig(ScraperConfig{BaseURL: "pubmed"})
	assert.Error(t, err)
}

func TestSearchURL(t *testing.T) {
	tests := []struct {
		base string
		term string
		want string
	}{
		{"https://pubmed.ncbi.nlm.nih.gov", "CHF", "https://pubmed.ncbi.nlm.nih.gov/?term=reducing+CHF+readmission"},
		{"https://pubmed.ncbi.nlm.nih.gov/", " Kidney failure ", "https://pubmed.ncbi.nlm.nih.gov/?term=reducing+Kidney+failure+readmission"},
		{"http://mirror.local/pubmed", "UTI & sepsis", "http://mirror.local/pubmed/?term=reducing+UTI+%26+sepsis+readmission"},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			s, err := NewWithConfig(ScraperConfig{BaseURL: tt.base})
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.SearchURL(tt.term))
		})
	}
}

func TestRetrieveWithMockServer(t *testing.T) {
	var gotQuery string
	articles := map[string]string{
		"/101/": articlePage("Study 101", "Early   follow-up\n reduced readmissions."),
		"/102/": `<html><body><h1 class="heading-title">Study 102</h1><p>No abstract here.</p></body></html>`,
		// /103/ is missing and answers 404
		"/104/": articlePage("Study 104", "Never fetched."),
	}
	listing := listingPage("101", "102", "103", "104", "105")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			gotQuery = r.URL.Query().Get("term")
			w.Write([]byte(listing))
			return
		}
		page, ok := articles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
	defer server.Close()

	var fetched []string
	s, err := NewWithConfig(ScraperConfig{
		BaseURL: server.URL,
		Limit:   3,
		OnProgress: func(url string) {
			fetched = append(fetched, url)
		},
	})
	require.NoError(t, err)

	docs, err := s.Retrieve(context.Background(), "CHF")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "reducing CHF readmission", gotQuery)

	assert.Equal(t, "Study 101 on readmission", docs[0].Title)
	assert.Equal(t, server.URL+"/101/", docs[0].URL)
	assert.Equal(t, "Early follow-up reduced readmissions.", docs[0].Abstract)

	// Page without abstract content and a page that 404s both fall back
	assert.Equal(t, server.URL+"/102/", docs[1].URL)
	assert.Equal(t, DefaultPlaceholder, docs[1].Abstract)
	assert.Equal(t, server.URL+"/103/", docs[2].URL)
	assert.Equal(t, DefaultPlaceholder, docs[2].Abstract)

	// Listing plus one fetch per returned record
	assert.Len(t, fetched, 4)
}

func TestRetrieveNeverExceedsLimit(t *testing.T) {
	ids := make([]string, 0, 10)
	pages := make(map[string]string)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("%d", 200+i)
		ids = append(ids, id)
		pages["/"+id+"/"] = articlePage("Study "+id, "Abstract "+id)
	}
	server := pubmedMock(t, listingPage(ids...), pages)

	for _, limit := range []int{1, 3, 10, 25} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, Limit: limit})
			require.NoError(t, err)

			docs, err := s.Retrieve(context.Background(), "Sepsis")
			require.NoError(t, err)
			assert.LessOrEqual(t, len(docs), limit)
			assert.Len(t, docs, min(limit, len(ids)))
			for _, doc := range docs {
				assert.NotEmpty(t, doc.Abstract)
			}
		})
	}
}

func TestRetrieveSkipsEntriesWithoutTitle(t *testing.T) {
	listing := `<html><body>
		<div class="docsum-content"><span>Broken entry</span></div>
		<div class="docsum-content"><a class="docsum-title">No href</a></div>
		<div class="docsum-content"><a class="docsum-title" href="/301/">Kept</a></div>
	</body></html>`
	server := pubmedMock(t, listing, map[string]string{
		"/301/": articlePage("Kept", "Kept abstract."),
	})

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL})
	require.NoError(t, err)

	docs, err := s.Retrieve(context.Background(), "UTI")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Kept", docs[0].Title)
	assert.Equal(t, "Kept abstract.", docs[0].Abstract)
}

func TestRetrieveNoResults(t *testing.T) {
	server := pubmedMock(t, `<html><body><div class="results-amount">No results were found.</div></body></html>`, nil)

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL})
	require.NoError(t, err)

	docs, err := s.Retrieve(context.Background(), "CHF")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestRetrieveSingleArticleRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.Redirect(w, r, "/999/", http.StatusFound)
		case "/999/":
			w.Write([]byte(articlePage("The only hit", "Single result abstract.")))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL})
	require.NoError(t, err)

	docs, err := s.Retrieve(context.Background(), "rare disease")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "The only hit", docs[0].Title)
	assert.Equal(t, server.URL+"/999/", docs[0].URL)
	assert.Equal(t, "Single result abstract.", docs[0].Abstract)
}

func TestRetrieveListingFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL})
	require.NoError(t, err)

	docs, err := s.Retrieve(context.Background(), "CHF")
	assert.Nil(t, docs)
	assert.ErrorIs(t, err, types.ErrNetwork)
	assert.Contains(t, err.Error(), "503")
}

func TestRetrieveUnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	s, err := NewWithConfig(ScraperConfig{BaseURL: url})
	require.NoError(t, err)

	_, err = s.Retrieve(context.Background(), "CHF")
	assert.ErrorIs(t, err, types.ErrNetwork)
}

func TestRetrieveCancelled(t *testing.T) {
	server := pubmedMock(t, listingPage("1", "2"), nil)

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Retrieve(ctx, "CHF")
	assert.Error(t, err)
}
