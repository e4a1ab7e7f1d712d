package model

import "time"

// FormStatus tracks a scanned paper form through extraction.
type FormStatus string

const (
	FormReceived   FormStatus = "received"
	FormProcessing FormStatus = "processing"
	FormExtracted  FormStatus = "extracted"
	FormFailed     FormStatus = "failed"
)

// FormSubmission is an uploaded paper-form scan and its extraction result.
type FormSubmission struct {
	ID           string            `json:"id"`
	FileName     string            `json:"fileName"`
	ObjectKey    string            `json:"-"`
	Status       FormStatus        `json:"status"`
	Fields       map[string]string `json:"fields,omitempty"`
	ErrorMessage *string           `json:"errorMessage,omitempty"`
	UploadedBy   string            `json:"uploadedBy,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}
