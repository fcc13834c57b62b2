package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/cellar/internal/cellar"
	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/internal/storage"
	"github.com/your-org/cellar/pkg/dto"
)

type WineHandler struct {
	svc *cellar.Service
}

func NewWineHandler(svc *cellar.Service) *WineHandler {
	return &WineHandler{svc: svc}
}

// parseID reads the :id path parameter, answering 400 itself when invalid.
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wine id"})
		return 0, false
	}
	return id, true
}

// respondError maps service errors onto status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Wine not found"})
	case errors.Is(err, storage.ErrNoChanges):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *WineHandler) List(c *gin.Context) {
	q, err := models.ParseWineQuery(c.Request.URL.Query())
	if err != nil {
		respondError(c, err)
		return
	}

	wines, err := h.svc.ListWines(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	if wines == nil {
		wines = []models.Wine{}
	}
	c.JSON(http.StatusOK, wines)
}

func (h *WineHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	w, err := h.svc.GetWine(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *WineHandler) Create(c *gin.Context) {
	var p models.WinePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}
	w, err := h.svc.CreateWine(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *WineHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var p models.WinePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}
	w, err := h.svc.UpdateWine(c.Request.Context(), id, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *WineHandler) AdjustQuantity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delta is required"})
		return
	}
	w, err := h.svc.AdjustQuantity(c.Request.Context(), id, *req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *WineHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteWine(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Wine deleted successfully"})
}

func (h *WineHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
