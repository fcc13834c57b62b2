package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/cellar/internal/cellar"
	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/internal/storage"
	"github.com/your-org/cellar/pkg/dto"
)

const invalidTypeMsg = "Invalid file type. Allowed: png, jpg, jpeg, gif, webp"

// AnalysisHandler serves the endpoints backed by the recognition service.
type AnalysisHandler struct {
	svc       *cellar.Service
	maxUpload int64
}

func NewAnalysisHandler(svc *cellar.Service, maxUploadBytes int64) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, maxUpload: maxUploadBytes}
}

// readUpload pulls the "image" form file, answering 400/413 itself on failure.
func (h *AnalysisHandler) readUpload(c *gin.Context) (cellar.Image, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image is too large"})
			return cellar.Image{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return cellar.Image{}, false
	}
	if fh.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		return cellar.Image{}, false
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process image"})
		return cellar.Image{}, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process image"})
		return cellar.Image{}, false
	}

	img, err := cellar.NewImage(fh.Filename, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidTypeMsg})
		return cellar.Image{}, false
	}
	return img, true
}

// Analyze reads an uploaded label. Recognition failures are reported inside
// the candidate with status 200 so the client can fall back to manual entry.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	img, ok := h.readUpload(c)
	if !ok {
		return
	}
	cand, err := h.svc.Analyze(c.Request.Context(), img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cand)
}

func (h *AnalysisHandler) AnalyzeClarified(c *gin.Context) {
	var req dto.ClarifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 and style are required"})
		return
	}

	img, err := decodeImage(req.ImageBase64, req.MediaType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cand, err := h.svc.AnalyzeClarified(c.Request.Context(), cellar.Clarification{
		Image:     img,
		Style:     req.Style,
		ImagePath: req.ImagePath,
		ImageRef:  req.ImageRef,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cand)
}

// decodeImage accepts plain base64 or a data: URL.
func decodeImage(b64, mediaType string) (cellar.Image, error) {
	if rest, ok := strings.CutPrefix(b64, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return cellar.Image{}, fmt.Errorf("malformed data URL")
		}
		if mediaType == "" {
			mediaType = strings.TrimSuffix(meta, ";base64")
		}
		b64 = payload
	}
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	known := false
	for _, mt := range storage.AllowedImageExts {
		if mt == mediaType {
			known = true
			break
		}
	}
	if !known {
		return cellar.Image{}, errors.New(invalidTypeMsg)
	}

	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return cellar.Image{}, fmt.Errorf("image_base64 is not valid base64")
	}
	return cellar.Image{Data: data, MediaType: mediaType}, nil
}

func (h *AnalysisHandler) Drink(c *gin.Context) {
	img, ok := h.readUpload(c)
	if !ok {
		return
	}

	out, err := h.svc.Drink(c.Request.Context(), img)
	switch {
	case errors.Is(err, cellar.ErrUnidentified):
		c.JSON(http.StatusBadRequest, dto.DrinkError{Error: out.Identified.Error})
	case errors.Is(err, cellar.ErrNotInCollection):
		c.JSON(http.StatusNotFound, dto.DrinkError{Error: "Wine not found in collection", Identified: out.Identified})
	case errors.Is(err, cellar.ErrNoneLeft):
		c.JSON(http.StatusBadRequest, dto.DrinkError{Error: "No bottles left of this wine", Wine: out.Wine})
	case err != nil:
		respondError(c, err)
	default:
		c.JSON(http.StatusOK, dto.DrinkResponse{
			Message:          fmt.Sprintf("Enjoyed a bottle of %s!", out.Wine.Name),
			Wine:             out.Wine,
			PreviousQuantity: out.PreviousQuantity,
			NewQuantity:      out.NewQuantity,
		})
	}
}

func (h *AnalysisHandler) Pair(c *gin.Context) {
	var req dto.PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please describe the food"})
		return
	}
	res, err := h.svc.Pair(c.Request.Context(), req.Food)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please describe the food"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
