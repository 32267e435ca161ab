package dto

import "time"

// JobCreateDTO is used for incoming generation requests
type JobCreateDTO struct {
	OperationClass string `json:"operation_class"`
	Prompt         string `json:"prompt" validate:"required"`
	Vibe           string `json:"vibe" validate:"required"`
	Style          string `json:"style" validate:"required"`
	InputImageURL  string `json:"input_image_url" validate:"required,url"`
}

// JobResponseDTO is returned in API responses
type JobResponseDTO struct {
	JobID          string    `json:"job_id"`
	ExternalHandle *string   `json:"external_handle,omitempty"`
	Status         string    `json:"status"`
	ResultURL      *string   `json:"result_url,omitempty"`
	Error          *string   `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SweepResponseDTO reports how many stale jobs a sweep failed
type SweepResponseDTO struct {
	FailedCount int64 `json:"failed_count"`
}
