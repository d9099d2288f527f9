package model

type DocumentAnalysis struct {
	Filename  string `json:"filename"`
	DocType   string `json:"doc_type"`
	Summary   string `json:"summary"`
	Chunks    int    `json:"chunks"`
	TextChars int    `json:"text_chars"`
	Warning   string `json:"warning,omitempty"`
}

type Answer struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Sources  []SearchResult `json:"sources"`
}

type HistoryEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Ctime    int64  `json:"ctime"`
}

type DocumentInsights struct {
	Filename  string              `json:"filename"`
	Entities  map[string][]string `json:"entities"`
	Questions []string            `json:"questions"`
}

type Session struct {
	Scope     string `json:"scope"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
