package models

// EmbeddingResult is the outcome of embedding a single text. It is attached to
// a Chunk or returned directly for live queries.
type EmbeddingResult struct {
	Vector   []float32 `json:"vector"`
	Model    string    `json:"model"`
	Tokens   int       `json:"tokens"`
	CostUSD  float64   `json:"cost_usd"`
	Cached   bool      `json:"cached"`
	TextHash string    `json:"text_hash"`
}

// BatchEmbeddingResult is index aligned with the input texts. Items that failed
// validation or budget checks are listed in Errors and have a nil Vector.
type BatchEmbeddingResult struct {
	Embeddings  [][]float32   `json:"embeddings"`
	TotalTokens int           `json:"total_tokens"`
	TotalCost   float64       `json:"total_cost"`
	CacheHits   int           `json:"cache_hits"`
	APICalls    int           `json:"api_calls"`
	Errors      map[int]error `json:"-"`
}
