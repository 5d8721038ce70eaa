package model

// ProcessingJob is the message carried from upload to the processing worker.
type ProcessingJob struct {
	DocumentID string `json:"documentId"`
	StorageKey string `json:"storageKey"`
}
