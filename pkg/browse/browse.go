// Package browse builds the navigation model shared by both OPDS families.
// Pages hold family-agnostic hrefs; the serializers prefix them with their
// own mount point and propagate the language facet.
package browse

import (
	"fmt"
	"net/url"

	"github.com/dshein-alt/ropds/pkg/models"
)

// Kind distinguishes navigation feeds from acquisition feeds, which carry
// different Atom profile MIME types.
type Kind int

const (
	KindNavigation Kind = iota
	KindAcquisition
)

// NavEntry is one navigation choice on a page.
type NavEntry struct {
	ID      string
	Title   string
	Content string
	Href    string
}

// Facet is one language facet link.
type Facet struct {
	Title  string
	Lang   string
	Active bool
}

// Page is a fully resolved feed: either navigation entries or a page of
// books, plus pagination neighbors when they exist.
type Page struct {
	ID    string
	Title string
	Self  string
	Kind  Kind

	// Total is the full result count behind the page, not the page length.
	Total int

	Nav    []NavEntry
	Books  []*models.Book
	Facets []Facet

	PrevHref string
	NextHref string
}

// pagePath appends a page segment for non-first pages.
func pagePath(base string, page int) string {
	if page <= 0 {
		return base
	}
	return fmt.Sprintf("%s%d/", base, page)
}

// neighbors fills PrevHref/NextHref from the total and page size.
func (p *Page) neighbors(base string, page, pageSize int) {
	if page > 0 {
		p.PrevHref = pagePath(base, page-1)
	}
	if (page+1)*pageSize < p.Total {
		p.NextHref = pagePath(base, page+1)
	}
}

func escapeSegment(s string) string {
	return url.PathEscape(s)
}
