package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/MikhailRaia/shortcode/internal/service"
)

type ShortenRequest struct {
	URL string `json:"url"`
}

type ShortenResponse struct {
	Result string `json:"result"`
}

// HandleShortenJSON answers with the absolute short URL built from the configured base URL.
func (h *Handler) HandleShortenJSON(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	contentEncoding := r.Header.Get("Content-Encoding")

	if contentEncoding != "gzip" && !strings.Contains(contentType, "application/json") {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "content type must be application/json"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read body"})
		return
	}

	var request ShortenRequest
	if err := json.Unmarshal(body, &request); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	m, err := h.urlService.Shorten(r.Context(), service.ShortenRequest{
		OriginalURL: strings.TrimSpace(request.URL),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, ShortenResponse{Result: h.urlService.ShortURL(m.Code)})
}
