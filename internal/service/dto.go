package service

import (
	"time"

	"docsearch/internal/model"
)

// DocumentSummary is returned right after an upload is accepted.
type DocumentSummary struct {
	ID        string       `json:"id"`
	FileName  string       `json:"file_name"`
	FileSize  int64        `json:"file_size"`
	Status    model.Status `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	Message   string       `json:"message"`
}

// DocumentDetails is the read model for a single document. Text and vector are never exposed.
type DocumentDetails struct {
	ID               string       `json:"id"`
	FileName         string       `json:"file_name"`
	OriginalFileName string       `json:"original_file_name"`
	FileSize         int64        `json:"file_size"`
	Status           model.Status `json:"status"`
	ErrorMessage     *string      `json:"error_message,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ProcessedAt      *time.Time   `json:"processed_at,omitempty"`
}

// SimilarDocument is one similarity search hit. Score is 1 - cosine distance.
type SimilarDocument struct {
	ID       string  `json:"id"`
	FileName string  `json:"file_name"`
	Excerpt  string  `json:"excerpt"`
	Score    float64 `json:"score"`
}

// DownloadLink is a presigned URL for the raw PDF.
type DownloadLink struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

func toDetails(d *model.Document) DocumentDetails {
	return DocumentDetails{
		ID:               d.ID,
		FileName:         d.FileName,
		OriginalFileName: d.OriginalFileName,
		FileSize:         d.FileSize,
		Status:           d.Status,
		ErrorMessage:     d.ErrorMessage,
		CreatedAt:        d.CreatedAt,
		ProcessedAt:      d.ProcessedAt,
	}
}
