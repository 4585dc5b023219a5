package dto

import (
	"time"

	"ragvault/internal/models"
)

// IngestSourceRequest carries either base64 Content or a URL to crawl.
// SourceID is set to reprocess an existing source.
type IngestSourceRequest struct {
	SourceID string `json:"source_id,omitempty"`
	Content  string `json:"content,omitempty"`
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Citable  bool   `json:"citable"`
}

type IngestSourceResponse struct {
	SourceID   string `json:"source_id"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	TokenCount int    `json:"token_count"`
	Skipped    int    `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
}

type SourceResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename,omitempty"`
	URL         string `json:"url,omitempty"`
	MIMEType    string `json:"mime_type"`
	Kind        string `json:"kind"`
	ByteLength  int64  `json:"byte_length"`
	Citable     bool   `json:"citable"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	TokenCount  int    `json:"token_count"`
	ErrorDetail string `json:"error_detail,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func NewSourceResponse(s *models.Source) SourceResponse {
	return SourceResponse{
		ID:          s.ID.String(),
		Filename:    s.Filename,
		URL:         s.URL,
		MIMEType:    s.MIMEType,
		Kind:        string(s.Kind),
		ByteLength:  s.ByteLength,
		Citable:     s.Citable,
		Status:      string(s.Status),
		ChunkCount:  s.ChunkCount,
		TokenCount:  s.TokenCount,
		ErrorDetail: s.ErrorDetail,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
	}
}
