// Package screening exposes the third-party restrictive-list endpoints.
// The matching itself lives in the external application server; this
// layer validates requests and caps bulk uploads before anything is
// forwarded or processed.
package screening

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/neffi/trustgate/internal/telemetry"
)

// Bulk validation files are held fully in memory before processing. The
// limit applies to the file itself; the request body cap carries a margin
// for multipart boundaries and part headers so a file of exactly the
// limit still fits.
const (
	maxUploadBytes   = 10 << 20 // 10 MiB
	uploadBodyMargin = 64 << 10
)

// Spreadsheet content types accepted for bulk validation uploads.
var allowedUploadTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel": true,
}

// SearchRequest is a single third-party restrictive-list lookup.
type SearchRequest struct {
	SearchType  string `json:"searchType"`
	SearchValue string `json:"searchValue"`
}

func (r *SearchRequest) validate() map[string]string {
	errs := map[string]string{}
	switch r.SearchType {
	case "name", "document":
	default:
		errs["searchType"] = "must be one of: name, document"
	}
	if r.SearchValue == "" {
		errs["searchValue"] = "must not be empty"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

type searchResponse struct {
	SearchType  string `json:"searchType"`
	SearchValue string `json:"searchValue"`
	Results     []any  `json:"results"`
	Message     string `json:"message,omitempty"`
}

// SearchHandler validates a restrictive-list search request. The match
// records come from the external screening service; this endpoint only
// owns request validation and the response envelope.
func SearchHandler(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "invalid search payload",
		})
		return
	}

	if errs := req.validate(); errs != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "invalid search payload",
			"errors":  errs,
		})
		return
	}

	telemetry.GetMetrics().ScreeningSearchesTotal.Add(r.Context(), 1)

	writeJSON(w, http.StatusOK, searchResponse{
		SearchType:  req.SearchType,
		SearchValue: req.SearchValue,
		Results:     []any{},
		Message:     "restrictive-list matching is handled by the screening service",
	})
}

type uploadResponse struct {
	FileName         string   `json:"fileName"`
	FileSize         int64    `json:"fileSize"`
	TotalRecords     int      `json:"totalRecords"`
	ProcessedRecords int      `json:"processedRecords"`
	Errors           []string `json:"errors"`
	Status           string   `json:"status"`
	Message          string   `json:"message,omitempty"`
}

// UploadHandler accepts a bulk validation spreadsheet. Files are held in
// memory up to a fixed cap and only Excel content types are accepted.
func UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+uploadBodyMargin)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "upload too large or malformed",
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "no file provided",
		})
		return
	}
	defer file.Close()

	if !allowedUploadTypes[header.Header.Get("Content-Type")] {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "only Excel files (.xlsx, .xls) are accepted",
		})
		return
	}

	if header.Size > maxUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "file exceeds the 10 MiB limit",
		})
		return
	}

	telemetry.GetMetrics().ScreeningUploadsTotal.Add(r.Context(), 1)

	log.Info().
		Str("file", header.Filename).
		Int64("size", header.Size).
		Msg("bulk validation file received")

	writeJSON(w, http.StatusOK, uploadResponse{
		FileName: header.Filename,
		FileSize: header.Size,
		Errors:   []string{},
		Status:   "completed",
		Message:  "file received; processing is handled by the screening service",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
