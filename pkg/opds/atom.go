// Package opds serves the OPDS 1.2 Atom catalog.
package opds

import "encoding/xml"

const (
	// ContentType is sent with every Atom response.
	ContentType = "application/atom+xml; charset=utf-8"

	mimeNavigation  = "application/atom+xml;profile=opds-catalog;kind=navigation"
	mimeAcquisition = "application/atom+xml;profile=opds-catalog"
	mimeOpenSearch  = "application/opensearchdescription+xml"

	relOpenAccess = "http://opds-spec.org/acquisition/open-access"
	relImage      = "http://opds-spec.org/image"
	relThumbnail  = "http://opds-spec.org/image/thumbnail"
	relFacet      = "http://opds-spec.org/facet"
)

// Feed is an Atom feed with the OPDS extension namespaces.
type Feed struct {
	XMLName   xml.Name `xml:"feed"`
	Xmlns     string   `xml:"xmlns,attr"`
	XmlnsOPDS string   `xml:"xmlns:opds,attr"`
	XmlnsDC   string   `xml:"xmlns:dcterms,attr"`

	ID       string  `xml:"id"`
	Title    string  `xml:"title"`
	Subtitle string  `xml:"subtitle,omitempty"`
	Updated  string  `xml:"updated"`
	Links    []Link  `xml:"link"`
	Entries  []Entry `xml:"entry"`
}

type Link struct {
	Rel         string `xml:"rel,attr,omitempty"`
	Href        string `xml:"href,attr"`
	Type        string `xml:"type,attr,omitempty"`
	Title       string `xml:"title,attr,omitempty"`
	FacetGroup  string `xml:"opds:facetGroup,attr,omitempty"`
	ActiveFacet string `xml:"opds:activeFacet,attr,omitempty"`
}

type Entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Updated    string     `xml:"updated"`
	Authors    []Author   `xml:"author,omitempty"`
	Categories []Category `xml:"category,omitempty"`
	Content    *Content   `xml:"content,omitempty"`
	Links      []Link     `xml:"link"`
}

type Author struct {
	Name string `xml:"name"`
}

type Category struct {
	Term  string `xml:"term,attr"`
	Label string `xml:"label,attr,omitempty"`
}

type Content struct {
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
}

// OpenSearchDescription is the document served at the search endpoint.
type OpenSearchDescription struct {
	XMLName     xml.Name        `xml:"OpenSearchDescription"`
	Xmlns       string          `xml:"xmlns,attr"`
	ShortName   string          `xml:"ShortName"`
	Description string          `xml:"Description"`
	URLs        []OpenSearchURL `xml:"Url"`
}

type OpenSearchURL struct {
	Type     string `xml:"type,attr"`
	Template string `xml:"template,attr"`
}
