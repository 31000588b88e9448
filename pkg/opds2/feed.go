package opds2

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dshein-alt/ropds/pkg/browse"
	"github.com/dshein-alt/ropds/pkg/models"
)

const basePath = "/opds/v2"

// downloads and covers stay on the v1 mount; both families share them.
const filesPath = "/opds"

type builder struct {
	lang string
}

func (b *builder) href(path string) string {
	full := basePath + path
	if b.lang != "" {
		full += "?lang=" + url.QueryEscape(b.lang)
	}
	return full
}

func (b *builder) document(page *browse.Page) *Document {
	now := time.Now().UTC()

	doc := &Document{
		Metadata: Metadata{
			Title:         page.Title,
			Modified:      now,
			NumberOfItems: page.Total,
		},
		Links: []Link{
			{Rel: "self", Href: b.href(page.Self), Type: ContentType},
			{Rel: "start", Href: b.href("/"), Type: ContentType},
			{Rel: "search", Href: basePath + "/search/{searchTerms}/", Type: ContentType, Templated: true},
		},
	}

	if page.PrevHref != "" {
		doc.Links = append(doc.Links, Link{Rel: "previous", Href: b.href(page.PrevHref), Type: ContentType})
	}
	if page.NextHref != "" {
		doc.Links = append(doc.Links, Link{Rel: "next", Href: b.href(page.NextHref), Type: ContentType})
	}

	for _, nav := range page.Nav {
		doc.Navigation = append(doc.Navigation, NavItem{
			Title: nav.Title,
			Href:  b.href(nav.Href),
			Type:  ContentType,
		})
	}

	for _, book := range page.Books {
		doc.Publications = append(doc.Publications, publication(book))
	}

	return doc
}

func publication(book *models.Book) Publication {
	modified := book.RegDate
	if modified.IsZero() {
		modified = time.Now()
	}

	pub := Publication{
		Metadata: PublicationMetadata{
			Identifier:  fmt.Sprintf("b:%d", book.ID),
			Title:       book.Title,
			Modified:    modified.UTC(),
			Language:    book.Lang,
			Published:   book.Docdate,
			Description: book.Annotation,
		},
	}

	for _, author := range book.Authors {
		pub.Metadata.Author = append(pub.Metadata.Author, Contributor{Name: author.FullName})
	}
	for _, genre := range book.Genres {
		pub.Metadata.Subject = append(pub.Metadata.Subject, Subject{Name: genre.Subsection, Code: genre.Code})
	}

	pub.Links = append(pub.Links, Link{
		Rel:  relOpenAccess,
		Href: fmt.Sprintf("%s/download/%d/0/", filesPath, book.ID),
		Type: models.FormatMimeType(book.Format),
	})
	if !models.IsNoZipFormat(book.Format) {
		pub.Links = append(pub.Links, Link{
			Rel:  relOpenAccess,
			Href: fmt.Sprintf("%s/download/%d/1/", filesPath, book.ID),
			Type: models.ZippedMimeType(book.Format),
		})
	}

	if book.Cover != 0 {
		pub.Images = append(pub.Images,
			Image{Href: fmt.Sprintf("%s/cover/%d/", filesPath, book.ID), Type: book.CoverType},
			Image{Href: fmt.Sprintf("%s/thumb/%d/", filesPath, book.ID), Type: "image/jpeg"},
		)
	}

	return pub
}
