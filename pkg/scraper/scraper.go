package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/readmit/internal/models"
	"github.com/xhad/readmit/internal/types"
)

// Selectors for the PubMed result listing and article pages.
const (
	resultSelector   = ".docsum-content"
	titleSelector    = "a.docsum-title"
	abstractSelector = ".abstract-content.selected"
	headingSelector  = "h1.heading-title"
)

const (
	DefaultBaseURL       = "https://pubmed.ncbi.nlm.nih.gov"
	DefaultQueryTemplate = "reducing %s readmission"
	DefaultPlaceholder   = "No abstract available."
)

type ScraperConfig struct {
	BaseURL       string
	QueryTemplate string // must contain one %s for the term
	Limit         int
	Timeout       time.Duration
	UserAgent     string
	Placeholder   string
	Client        *http.Client
	Logger        *slog.Logger
	OnProgress    func(url string)
}

// Scraper retrieves article records from a PubMed-style search site.
type Scraper struct {
	config ScraperConfig
	client *http.Client
	base   *url.URL
	logger *slog.Logger
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.QueryTemplate == "" {
		config.QueryTemplate = DefaultQueryTemplate
	}
	if config.Limit == 0 {
		config.Limit = 3
	}
	if config.Limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Placeholder == "" {
		config.Placeholder = DefaultPlaceholder
	}
	if strings.Count(config.QueryTemplate, "%s") != 1 {
		return nil, fmt.Errorf("query template %q must contain exactly one %%s", config.QueryTemplate)
	}

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base URL %q is not absolute", config.BaseURL)
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scraper{
		config: config,
		client: client,
		base:   base,
		logger: logger,
	}, nil
}

// Limit is the maximum number of records Retrieve returns.
func (s *Scraper) Limit() int { return s.config.Limit }

// SearchURL builds the listing URL for a query term.
func (s *Scraper) SearchURL(term string) string {
	query := fmt.Sprintf(s.config.QueryTemplate, strings.TrimSpace(term))
	u := *s.base
	u.Path = s.base.Path + "/"
	u.RawQuery = url.Values{"term": {query}}.Encode()
	return u.String()
}

// Retrieve returns up to Limit articles for term, in listing order.
// A listing that cannot be fetched or read fails the whole call; an article
// page that cannot be fetched or read yields the placeholder abstract.
func (s *Scraper) Retrieve(ctx context.Context, term string) ([]models.Article, error) {
	listingURL := s.SearchURL(term)

	doc, finalURL, err := s.fetch(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	entries := doc.Find(resultSelector)
	if entries.Length() == 0 {
		// A query with a single hit lands on the article page itself.
		if article, ok := s.articleFromPage(doc, finalURL); ok {
			return []models.Article{article}, nil
		}
		s.logger.Info("listing has no results", "term", term, "url", listingURL)
		return []models.Article{}, nil
	}

	articles := make([]models.Article, 0, s.config.Limit)
	entries.EachWithBreak(func(_ int, entry *goquery.Selection) bool {
		if len(articles) >= s.config.Limit {
			return false
		}
		if err := ctx.Err(); err != nil {
			return false
		}

		link := entry.Find(titleSelector).First()
		if link.Length() == 0 {
			return true
		}
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}

		articleURL, err := s.resolve(finalURL, href)
		if err != nil {
			s.logger.Warn("skipping result with bad link", "term", term, "href", href, "error", err)
			return true
		}

		articles = append(articles, models.Article{
			Title:    cleanText(link.Text()),
			URL:      articleURL,
			Abstract: s.abstractFor(ctx, articleURL),
		})
		return true
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return articles, nil
}

// abstractFor fetches an article page and extracts its abstract, falling
// back to the placeholder.
func (s *Scraper) abstractFor(ctx context.Context, articleURL string) string {
	doc, _, err := s.fetch(ctx, articleURL)
	if err != nil {
		s.logger.Warn("abstract unavailable", "url", articleURL, "kind", types.KindOf(err).String(), "error", err)
		return s.config.Placeholder
	}
	if abstract, ok := extractAbstract(doc); ok {
		return abstract
	}
	s.logger.Warn("abstract unavailable", "url", articleURL, "kind", types.KindParse.String(),
		"error", "no abstract content on page")
	return s.config.Placeholder
}

func (s *Scraper) articleFromPage(doc *goquery.Document, pageURL *url.URL) (models.Article, bool) {
	title := cleanText(doc.Find(headingSelector).First().Text())
	if title == "" {
		return models.Article{}, false
	}
	abstract, ok := extractAbstract(doc)
	if !ok {
		abstract = s.config.Placeholder
	}
	return models.Article{
		Title:    title,
		URL:      pageURL.String(),
		Abstract: abstract,
	}, true
}

func extractAbstract(doc *goquery.Document) (string, bool) {
	sel := doc.Find(abstractSelector).First()
	if sel.Length() == 0 {
		return "", false
	}
	text := cleanText(sel.Text())
	return text, text != ""
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, types.Wrap(types.KindNetwork, "build request", err)
	}
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, types.Wrap(types.KindNetwork, "fetch "+rawURL, err)
	}
	defer resp.Body.Close()

	if s.config.OnProgress != nil {
		s.config.OnProgress(rawURL)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, types.Wrap(types.KindNetwork, "fetch "+rawURL,
			fmt.Errorf("received status code %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, types.Wrap(types.KindParse, "parse "+rawURL, err)
	}

	return doc, resp.Request.URL, nil
}

func (s *Scraper) resolve(pageURL *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	base := pageURL
	if base == nil {
		base = s.base
	}
	return base.ResolveReference(ref).String(), nil
}

func cleanText(content string) string {
	return strings.Join(strings.Fields(content), " ")
}
