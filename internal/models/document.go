package models

// Article is one retrieved bibliographic item.
type Article struct {
	Title    string
	URL      string
	Abstract string
}

// Citation is the (title, url) reference kept for a processed term.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Summary is the generated guidance for one query term.
type Summary struct {
	Term string `json:"term"`
	Text string `json:"text"`
}

// Citation returns the reference part of the article.
func (a Article) Citation() Citation {
	return Citation{Title: a.Title, URL: a.URL}
}

// Citations maps articles to their references, preserving order.
func Citations(articles []Article) []Citation {
	out := make([]Citation, 0, len(articles))
	for _, a := range articles {
		out = append(out, a.Citation())
	}
	return out
}
