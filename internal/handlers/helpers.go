package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
)

// maxBodyBytes bounds request bodies accepted by the API
const maxBodyBytes = 1 << 20

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// StatusForError maps service errors onto HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrCredentialNotFound),
		errors.Is(err, interfaces.ErrRuleNotFound),
		errors.Is(err, interfaces.ErrDomainNotTracked),
		errors.Is(err, interfaces.ErrJobNotFound),
		errors.Is(err, interfaces.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrRuleExists),
		errors.Is(err, interfaces.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes err with the status it maps to. Server-side
// failures are logged and reported without detail.
func WriteServiceError(w http.ResponseWriter, logger arbor.ILogger, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("Request failed")
		WriteError(w, status, "Internal server error")
		return
	}
	WriteError(w, status, err.Error())
}

// DecodeJSON reads a bounded JSON body into v
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// PathParam returns the unescaped path segment after prefix, e.g. the
// credential key in /api/credentials/{key}
func PathParam(r *http.Request, prefix string) string {
	raw := strings.TrimPrefix(r.URL.EscapedPath(), prefix)
	raw = strings.Trim(raw, "/")
	value, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return value
}

// QueryBool reads a boolean query parameter
func QueryBool(r *http.Request, name string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && value
}

// PaginationResponse contains pagination metadata for API responses.
type PaginationResponse struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// GetPaginationParams extracts pagination parameters from query string.
// Returns page (0-indexed) and pageSize (default 50, max 100).
func GetPaginationParams(r *http.Request) (page, pageSize int) {
	page = 0
	pageSize = 50

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p >= 0 {
			page = p
		}
	}

	if pageSizeStr := r.URL.Query().Get("pageSize"); pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}

	return page, pageSize
}

// Paginate applies pagination to a slice of data.
func Paginate[T any](data []T, page, pageSize int) ([]T, PaginationResponse) {
	totalItems := len(data)
	pagination := PaginationResponse{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: int(math.Ceil(float64(totalItems) / float64(pageSize))),
	}

	start := page * pageSize
	if start >= totalItems {
		return []T{}, pagination
	}

	end := start + pageSize
	if end > totalItems {
		end = totalItems
	}

	return data[start:end], pagination
}
