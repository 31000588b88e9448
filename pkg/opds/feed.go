package opds

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/dshein-alt/ropds/pkg/browse"
	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/models"
)

const basePath = "/opds"

// builder turns browse pages into Atom feeds, carrying the active language
// facet into every emitted href.
type builder struct {
	cfg  *config.Config
	lang string
}

// href mounts a family-agnostic path under /opds and propagates the language
// facet as a query parameter.
func (b *builder) href(path string) string {
	full := basePath + path
	if b.lang != "" {
		full += "?lang=" + url.QueryEscape(b.lang)
	}
	return full
}

func (b *builder) feed(page *browse.Page) *Feed {
	now := time.Now().UTC().Format(time.RFC3339)

	kindMime := mimeNavigation
	if page.Kind == browse.KindAcquisition {
		kindMime = mimeAcquisition
	}

	feed := &Feed{
		Xmlns:     "http://www.w3.org/2005/Atom",
		XmlnsOPDS: "http://opds-spec.org/2010/catalog",
		XmlnsDC:   "http://purl.org/dc/terms/",
		ID:        page.ID,
		Title:     page.Title,
		Updated:   now,
	}
	if page.Self == "/" {
		feed.Subtitle = b.cfg.OPDS.Subtitle
	}
	feed.Links = []Link{
		{Rel: "self", Href: b.href(page.Self), Type: kindMime},
		{Rel: "start", Href: b.href("/"), Type: mimeNavigation},
		{Rel: "search", Href: basePath + "/search/", Type: mimeOpenSearch},
		{Rel: "search", Href: basePath + "/search/{searchTerms}/", Type: mimeAcquisition},
	}

	if page.PrevHref != "" {
		feed.Links = append(feed.Links, Link{Rel: "prev", Href: b.href(page.PrevHref), Type: kindMime})
	}
	if page.NextHref != "" {
		feed.Links = append(feed.Links, Link{Rel: "next", Href: b.href(page.NextHref), Type: kindMime})
	}

	for _, facet := range page.Facets {
		link := Link{
			Rel:        relFacet,
			Href:       basePath + "/?lang=" + url.QueryEscape(facet.Lang),
			Type:       mimeNavigation,
			Title:      facet.Title,
			FacetGroup: "Language",
		}
		if facet.Active {
			link.ActiveFacet = "true"
		}
		feed.Links = append(feed.Links, link)
	}

	for _, nav := range page.Nav {
		entry := Entry{
			ID:      nav.ID,
			Title:   nav.Title,
			Updated: now,
			Links: []Link{
				{Rel: "subsection", Href: b.href(nav.Href), Type: navMime(nav.Href)},
			},
		}
		if nav.Content != "" {
			entry.Content = &Content{Type: "text", Text: nav.Content}
		}
		feed.Entries = append(feed.Entries, entry)
	}

	for _, book := range page.Books {
		feed.Entries = append(feed.Entries, b.bookEntry(book))
	}

	return feed
}

// navMime distinguishes links that land on book lists from links that land
// on further navigation.
func navMime(href string) string {
	if strings.HasPrefix(href, "/search/books/") ||
		strings.HasPrefix(href, "/recent/") ||
		strings.HasPrefix(href, "/bookshelf/") {
		return mimeAcquisition
	}
	return mimeNavigation
}

func (b *builder) bookEntry(book *models.Book) Entry {
	updated := book.RegDate
	if updated.IsZero() {
		updated = time.Now()
	}

	entry := Entry{
		ID:      fmt.Sprintf("tag:book:%d", book.ID),
		Title:   book.Title,
		Updated: updated.UTC().Format(time.RFC3339),
		Content: &Content{Type: "text/html", Text: bookContent(book)},
	}

	download := fmt.Sprintf("%s/download/%d/0/", basePath, book.ID)
	entry.Links = append(entry.Links,
		Link{Rel: "alternate", Href: download, Type: models.FormatMimeType(book.Format)},
		Link{Rel: relOpenAccess, Href: download, Type: models.FormatMimeType(book.Format)},
	)
	if !models.IsNoZipFormat(book.Format) {
		entry.Links = append(entry.Links, Link{
			Rel:  relOpenAccess,
			Href: fmt.Sprintf("%s/download/%d/1/", basePath, book.ID),
			Type: models.ZippedMimeType(book.Format),
		})
	}

	if book.Cover != 0 {
		entry.Links = append(entry.Links,
			Link{Rel: relImage, Href: fmt.Sprintf("%s/cover/%d/", basePath, book.ID), Type: book.CoverType},
			Link{Rel: relThumbnail, Href: fmt.Sprintf("%s/thumb/%d/", basePath, book.ID), Type: "image/jpeg"},
		)
	}

	for _, author := range book.Authors {
		entry.Authors = append(entry.Authors, Author{Name: author.FullName})
		entry.Links = append(entry.Links, Link{
			Rel:   "related",
			Href:  b.href(fmt.Sprintf("/search/books/a/%d/", author.ID)),
			Type:  mimeAcquisition,
			Title: author.FullName,
		})
	}

	for _, genre := range book.Genres {
		entry.Categories = append(entry.Categories, Category{Term: genre.Code, Label: genre.Subsection})
	}

	return entry
}

// bookContent renders the HTML summary block shown by OPDS readers.
func bookContent(book *models.Book) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s<br/>", html.EscapeString(book.Title))
	fmt.Fprintf(&sb, "Format: %s<br/>", book.Format)
	fmt.Fprintf(&sb, "Size: %d KB<br/>", book.Size/1024)
	if book.Lang != "" {
		fmt.Fprintf(&sb, "Language: %s<br/>", book.Lang)
	}
	if book.Docdate != "" {
		fmt.Fprintf(&sb, "Date: %s<br/>", html.EscapeString(book.Docdate))
	}
	if book.Annotation != "" {
		fmt.Fprintf(&sb, "<p>%s</p>", html.EscapeString(book.Annotation))
	}
	return sb.String()
}
