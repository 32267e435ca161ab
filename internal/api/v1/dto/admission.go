package dto

import "time"

// AdmissionCheckDTO is used for incoming admission-check requests
type AdmissionCheckDTO struct {
	OperationClass string `json:"operation_class" validate:"required"`
}

// AdmissionCheckResponseDTO is returned in API responses
type AdmissionCheckResponseDTO struct {
	Decision        string    `json:"decision"`
	Remaining       int       `json:"remaining"`
	ResetAt         time.Time `json:"reset_at"`
	RequiredBalance *int64    `json:"required_balance,omitempty"`
	Balance         *int64    `json:"balance,omitempty"`
}
