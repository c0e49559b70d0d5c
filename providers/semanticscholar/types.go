// Package semanticscholar enthält die Logik für die Interaktion mit der
// Semantic Scholar Academic Graph API.
package semanticscholar

// SearchResponse repräsentiert die JSON-Antwort der Paper-Suche.
type SearchResponse struct {
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Data   []RawPaper `json:"data"`
}

// CitationsResponse repräsentiert die JSON-Antwort der Citations/References-
// Endpunkte.
type CitationsResponse struct {
	Data []CitationEntry `json:"data"`
}

// CitationEntry enthält je nach Endpunkt das zitierende oder zitierte Paper.
type CitationEntry struct {
	CitingPaper *RawPaper `json:"citingPaper,omitempty"`
	CitedPaper  *RawPaper `json:"citedPaper,omitempty"`
}

// RawPaper repräsentiert ein einzelnes Paper in der API-Antwort.
type RawPaper struct {
	PaperID     string      `json:"paperId"`
	ExternalIDs ExternalIDs `json:"externalIds"`
	Title       string      `json:"title"`
	Abstract    string      `json:"abstract"`
	Year        *int        `json:"year"`
	Venue       string      `json:"venue"`
	URL         string      `json:"url"`

	CitationCount int `json:"citationCount"`

	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`

	FieldsOfStudy []string `json:"fieldsOfStudy"`
}

// ExternalIDs enthält die Fremd-Identitäten eines Papers.
type ExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}
