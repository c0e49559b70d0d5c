// Package crossref enthält die Logik für die Interaktion mit der CrossRef
// REST-API.
package crossref

// WorksResponse repräsentiert die JSON-Antwort des /works-Endpunkts.
type WorksResponse struct {
	Message struct {
		TotalResults int    `json:"total-results"`
		Items        []Work `json:"items"`
	} `json:"message"`
}

// WorkResponse repräsentiert die JSON-Antwort des /works/{doi}-Endpunkts.
type WorkResponse struct {
	Message Work `json:"message"`
}

// Work repräsentiert eine einzelne Publikation.
type Work struct {
	DOI      string   `json:"DOI"`
	Title    []string `json:"title"`
	Abstract string   `json:"abstract"`
	URL      string   `json:"URL"`
	Type     string   `json:"type"`

	Author []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`

	Published struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published"`

	ContainerTitle []string `json:"container-title"`
	Publisher      string   `json:"publisher"`

	IsReferencedByCount int `json:"is-referenced-by-count"`

	Subject []string `json:"subject"`
}
