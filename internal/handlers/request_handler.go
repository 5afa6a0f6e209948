package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

// maxBatchRecords bounds one ingestion call
const maxBatchRecords = 500

// RequestHandler ingests request records from an external browser extension
type RequestHandler struct {
	capture interfaces.CaptureService
	logger  arbor.ILogger
}

func NewRequestHandler(capture interfaces.CaptureService, logger arbor.ILogger) *RequestHandler {
	return &RequestHandler{
		capture: capture,
		logger:  logger,
	}
}

// IngestHandler handles POST /api/requests with a single record or an array
func (h *RequestHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	records, err := decodeRecords(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request record: "+err.Error())
		return
	}
	if len(records) > maxBatchRecords {
		WriteError(w, http.StatusBadRequest, "Too many request records")
		return
	}

	results := make([]*interfaces.CaptureResult, 0, len(records))
	for _, record := range records {
		result, err := h.capture.HandleRequest(r.Context(), record)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		results = append(results, result)
	}

	h.logger.Debug().Int("records", len(records)).Msg("Request records ingested")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

func decodeRecords(body []byte) ([]*models.RequestRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []*models.RequestRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var record models.RequestRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, err
	}
	return []*models.RequestRecord{&record}, nil
}
