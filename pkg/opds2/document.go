// Package opds2 serves the OPDS 2.0 JSON catalog.
package opds2

import "time"

// ContentType is sent with every OPDS 2.0 response.
const ContentType = "application/opds+json; charset=utf-8"

const relOpenAccess = "http://opds-spec.org/acquisition/open-access"

// Document is a full OPDS 2.0 feed.
type Document struct {
	Metadata     Metadata      `json:"metadata"`
	Links        []Link        `json:"links"`
	Navigation   []NavItem     `json:"navigation,omitempty"`
	Publications []Publication `json:"publications,omitempty"`
}

type Metadata struct {
	Title         string    `json:"title"`
	Modified      time.Time `json:"modified"`
	NumberOfItems int       `json:"numberOfItems"`
}

type Link struct {
	Rel       string `json:"rel"`
	Href      string `json:"href"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Templated bool   `json:"templated,omitempty"`
}

type NavItem struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Type  string `json:"type"`
}

type Publication struct {
	Metadata PublicationMetadata `json:"metadata"`
	Links    []Link              `json:"links"`
	Images   []Image             `json:"images,omitempty"`
}

type PublicationMetadata struct {
	Identifier  string        `json:"identifier"`
	Title       string        `json:"title"`
	Modified    time.Time     `json:"modified"`
	Language    string        `json:"language,omitempty"`
	Published   string        `json:"published,omitempty"`
	Description string        `json:"description,omitempty"`
	Author      []Contributor `json:"author,omitempty"`
	Subject     []Subject     `json:"subject,omitempty"`
}

type Contributor struct {
	Name string `json:"name"`
}

type Subject struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type Image struct {
	Href string `json:"href"`
	Type string `json:"type"`
}
