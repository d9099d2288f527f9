package model

// DocumentRecord is the metadata kept for one stored chunk.
type DocumentRecord struct {
	Filename   string `json:"filename"`
	DocType    string `json:"doc_type"`
	ChunkIndex int    `json:"chunk_index"`
	Preview    string `json:"preview"`
}

type SearchResult struct {
	Text       string         `json:"text"`
	Metadata   DocumentRecord `json:"metadata"`
	Distance   float32        `json:"distance"`
	Similarity float64        `json:"similarity"`
}

type DocumentSummary struct {
	Filename   string `json:"filename"`
	DocType    string `json:"doc_type"`
	ChunkCount int    `json:"chunk_count"`
	Preview    string `json:"preview"`
}

type MemoryStats struct {
	TotalChunks     int  `json:"total_chunks"`
	UniqueDocuments int  `json:"unique_documents"`
	IndexSize       int  `json:"index_size"`
	Dimension       int  `json:"dimension"`
	Persisted       bool `json:"persisted"`
}
