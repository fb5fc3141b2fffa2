package screening

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchHandler_valid(t *testing.T) {
	body := strings.NewReader(`{"searchType":"document","searchValue":"900123456"}`)
	w := httptest.NewRecorder()
	SearchHandler(w, httptest.NewRequest(http.MethodPost, "/api/third-party/search", body))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "document", got.SearchType)
	require.Equal(t, "900123456", got.SearchValue)
	require.NotNil(t, got.Results)
	require.Empty(t, got.Results)
}

func TestSearchHandler_validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: `{"searchType":`},
		{name: "unknown search type", body: `{"searchType":"passport","searchValue":"X123"}`},
		{name: "empty search value", body: `{"searchType":"name","searchValue":""}`},
		{name: "empty body", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SearchHandler(w, httptest.NewRequest(http.MethodPost, "/api/third-party/search", strings.NewReader(tt.body)))

			require.Equal(t, http.StatusBadRequest, w.Code)

			var got map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			require.Equal(t, "invalid search payload", got["message"])
		})
	}
}

func multipartUpload(t *testing.T, fieldName, fileName, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="`+fileName+`"`)
	hdr.Set("Content-Type", contentType)

	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestUploadHandler_acceptsExcel(t *testing.T) {
	body, contentType := multipartUpload(t, "file", "clients.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		[]byte("PK\x03\x04 fake workbook"))

	r := httptest.NewRequest(http.MethodPost, "/api/third-party/upload", body)
	r.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	UploadHandler(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "clients.xlsx", got.FileName)
	require.Equal(t, int64(len("PK\x03\x04 fake workbook")), got.FileSize)
	require.Equal(t, "completed", got.Status)
	require.NotNil(t, got.Errors)
}

func TestUploadHandler_rejectsNonExcel(t *testing.T) {
	body, contentType := multipartUpload(t, "file", "clients.csv", "text/csv", []byte("a,b,c"))

	r := httptest.NewRequest(http.MethodPost, "/api/third-party/upload", body)
	r.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	UploadHandler(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Excel")
}

func TestUploadHandler_missingFile(t *testing.T) {
	body, contentType := multipartUpload(t, "attachment", "clients.xlsx",
		"application/vnd.ms-excel", []byte("data"))

	r := httptest.NewRequest(http.MethodPost, "/api/third-party/upload", body)
	r.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	UploadHandler(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "no file provided")
}

func TestUploadHandler_acceptsFileAtLimit(t *testing.T) {
	// A file of exactly the limit must fit despite multipart overhead.
	exact := bytes.Repeat([]byte("x"), maxUploadBytes)
	body, contentType := multipartUpload(t, "file", "clients.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", exact)

	r := httptest.NewRequest(http.MethodPost, "/api/third-party/upload", body)
	r.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	UploadHandler(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, int64(maxUploadBytes), got.FileSize)
}

func TestUploadHandler_tooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("x"), maxUploadBytes+1024)
	body, contentType := multipartUpload(t, "file", "clients.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", big)

	r := httptest.NewRequest(http.MethodPost, "/api/third-party/upload", body)
	r.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	UploadHandler(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "limit")
}
