package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/carrierdesk/backend/internal/db"
	"github.com/carrierdesk/backend/internal/models"
	"github.com/carrierdesk/backend/internal/service"
)

type Handler struct {
	Store     *db.Store
	Analytics *service.AnalyticsService
	Bookings  *service.BookingService
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Dashboard analytics
// @Description Negotiation depth, carrier objections, top lanes, and equipment balance for the last 30 days
// @Tags analytics
// @Produce json
// @Success 200 {object} models.AnalyticsSnapshot
// @Router /api/analytics [get]
func (h *Handler) AnalyticsSnapshot(c *gin.Context) {
	snapshot, err := h.Analytics.GetAnalytics(c.Request.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("analytics aggregation failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to compute analytics", err.Error())
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// @Summary Book a load
// @Description Confirm a load is booked by a carrier; marks the load unavailable
// @Tags booked-loads
// @Accept json
// @Produce json
// @Param request body service.BookLoadRequest true "Booking request"
// @Success 200 {object} models.BookedLoad
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/booked-loads [post]
func (h *Handler) CreateBooking(c *gin.Context) {
	var req service.BookLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	booking, err := h.Bookings.BookLoad(c.Request.Context(), req)
	switch {
	case errors.Is(err, service.ErrLoadNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	case errors.Is(err, service.ErrLoadAlreadyBooked):
		writeError(c, http.StatusConflict, "CONFLICT", err.Error(), nil)
		return
	case err != nil:
		h.Logger.Error().Err(err).Str("load_id", req.LoadID).Msg("booking transaction failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to book load", err.Error())
		return
	}
	c.JSON(http.StatusOK, booking)
}

// @Summary Booking for a load
// @Tags booked-loads
// @Produce json
// @Param load_id path string true "Load ID"
// @Success 200 {object} models.EnrichedBookedLoad
// @Failure 404 {object} map[string]any
// @Router /api/booked-loads/{load_id} [get]
func (h *Handler) GetBooking(c *gin.Context) {
	loadID := c.Param("load_id")
	booking, err := h.Bookings.GetBooking(c.Request.Context(), loadID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get booking", err.Error())
		return
	}
	if booking == nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No booking found for load "+loadID, nil)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// @Summary List bookings
// @Tags booked-loads
// @Produce json
// @Param offset query int false "Offset" default(0)
// @Param limit query int false "Limit (1-100)" default(20)
// @Success 200 {object} map[string]any
// @Router /api/booked-loads [get]
func (h *Handler) BookingsList(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, offset, limit, err := h.Bookings.ListBookings(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list bookings", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "offset": offset, "limit": limit})
}

func (h *Handler) LoadsList(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	equipmentType := strings.TrimSpace(c.Query("equipment_type"))
	q := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Store.ListLoads(c.Request.Context(), status, equipmentType, q, limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list loads", err.Error())
		return
	}
	if items == nil {
		items = []models.Load{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) LoadDetails(c *gin.Context) {
	loadID := c.Param("load_id")
	load, err := h.Store.GetLoad(c.Request.Context(), loadID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get load", err.Error())
		return
	}
	if load == nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Load not found", nil)
		return
	}
	c.JSON(http.StatusOK, load)
}

type ImportSummary struct {
	Loads struct {
		Parsed   int `json:"parsed"`
		Inserted int `json:"inserted"`
		Errors   int `json:"errors"`
	} `json:"loads"`
	Errors []string `json:"errors"`
}

// @Summary Import loads CSV
// @Description Bulk-load freight offers from a CSV upload
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param loads formData file true "loads.csv"
// @Success 200 {object} ImportSummary
// @Failure 400 {object} map[string]any
// @Router /api/loads/import [post]
func (h *Handler) ImportLoads(c *gin.Context) {
	loadsFile, err := c.FormFile("loads")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "loads file required", nil)
		return
	}
	if !validateExt(loadsFile.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file must be .csv", nil)
		return
	}

	summary := ImportSummary{Errors: []string{}}
	loads, errs := parseLoadsCSV(loadsFile)
	summary.Loads.Parsed = len(loads)
	summary.Loads.Errors = len(errs)
	summary.Errors = append(summary.Errors, errs...)

	if len(summary.Errors) > 0 {
		writeError(c, http.StatusBadRequest, "CSV_PARSE_ERROR", "CSV validation errors", summary.Errors)
		return
	}

	inserted, err := h.Store.InsertLoads(c.Request.Context(), loads)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to insert loads", err.Error())
		return
	}
	summary.Loads.Inserted = int(inserted)

	c.JSON(http.StatusOK, summary)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func parseLoadsCSV(file *multipart.FileHeader) ([]models.Load, []string) {
	f, err := file.Open()
	if err != nil {
		return nil, []string{err.Error()}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	headers, err := reader.Read()
	if err != nil {
		return nil, []string{"failed to read header"}
	}
	index := headerIndex(headers)
	var errs []string
	var out []models.Load

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}

		id := normalizeTrim(getFieldAny(rec, index, "load_id", "id"))
		equipment := normalizeTrim(getFieldAny(rec, index, "equipment_type", "equipment"))
		status := strings.ToLower(normalizeTrim(getFieldAny(rec, index, "status")))
		origin := normalizeTrim(getFieldAny(rec, index, "origin", "lane_origin"))
		destination := normalizeTrim(getFieldAny(rec, index, "destination", "lane_destination"))
		rateStr := normalizeTrim(getFieldAny(rec, index, "loadboard_rate", "rate"))
		rate, _ := strconv.ParseFloat(rateStr, 64)

		if id == "" {
			errs = append(errs, "load_id required")
			continue
		}
		if origin == "" || destination == "" {
			errs = append(errs, "load "+id+": origin and destination required")
			continue
		}
		if status == "" {
			status = models.LoadAvailable
		}

		out = append(out, models.Load{
			LoadID:        id,
			EquipmentType: equipment,
			Status:        status,
			Origin:        origin,
			Destination:   destination,
			LoadboardRate: rate,
		})
	}
	return out, errs
}

func headerIndex(headers []string) map[string]int {
	idx := map[string]int{}
	for i, h := range headers {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func getField(rec []string, idx map[string]int, name string) string {
	pos, ok := idx[name]
	if !ok || pos >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[pos])
}

func getFieldAny(rec []string, idx map[string]int, names ...string) string {
	for _, name := range names {
		if v := getField(rec, idx, normalizeHeader(name)); v != "" {
			return v
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	return strings.ToLower(strings.TrimSpace(h))
}

func normalizeTrim(v string) string {
	return strings.TrimSpace(v)
}

func validateExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".csv"
}
