// Package dto holds the JSON shapes of the HTTP API that are not plain
// models: request bodies and composite responses.
package dto

import "github.com/your-org/cellar/internal/models"

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type QuantityRequest struct {
	Delta *int `json:"delta" binding:"required"`
}

// ClarifyRequest re-submits an analysed image with the owner's style answer.
// ImagePath and ImageRef come from the first analysis and are reused.
type ClarifyRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
	MediaType   string `json:"media_type"`
	Style       string `json:"style" binding:"required"`
	ImagePath   string `json:"image_path"`
	ImageRef    string `json:"image_ref"`
}

type PairRequest struct {
	Food string `json:"food"`
}

type DrinkResponse struct {
	Message          string       `json:"message"`
	Wine             *models.Wine `json:"wine"`
	PreviousQuantity int          `json:"previous_quantity"`
	NewQuantity      int          `json:"new_quantity"`
}

// DrinkError carries what was recognised when a drink could not be recorded.
type DrinkError struct {
	Error      string                 `json:"error"`
	Identified *models.Identification `json:"identified,omitempty"`
	Wine       *models.Wine           `json:"wine,omitempty"`
}

type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
