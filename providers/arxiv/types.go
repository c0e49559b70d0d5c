// Package arxiv enthält die Logik für die Interaktion mit der arXiv Atom-API.
package arxiv

import (
	"encoding/xml"
)

// Feed repräsentiert das Atom-Dokument der arXiv-API.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	Entries      []Entry  `xml:"entry"`
}

// Entry repräsentiert ein einzelnes Paper im Feed.
type Entry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	DOI       string `xml:"doi"`

	Authors []struct {
		Name string `xml:"name"`
	} `xml:"author"`

	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`

	PrimaryCategory struct {
		Term string `xml:"term,attr"`
	} `xml:"primary_category"`

	// Journal-Referenz, falls das Preprint inzwischen publiziert wurde.
	JournalRef string `xml:"journal_ref"`

	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
		Type string `xml:"type,attr"`
	} `xml:"link"`
}
