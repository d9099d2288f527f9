package model

// EmbeddingCache is one cached vector, keyed by embedder model, retrieval
// task type and the sha256 of the embedded text. Ctime drives cleanup.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name" db:"model_name"`
	TaskType    string    `json:"task_type" db:"task_type"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	Embedding   []float32 `json:"embedding" db:"-"`
	Ctime       int64     `json:"ctime" db:"ctime"`
}
