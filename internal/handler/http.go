package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortcode/internal/logger"
	"github.com/MikhailRaia/shortcode/internal/middleware"
	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/pool"
	"github.com/MikhailRaia/shortcode/internal/service"
)

const maxBodySize = 64 << 10

// URLService is the subset of service.URLService used by the transports.
type URLService interface {
	Shorten(ctx context.Context, req service.ShortenRequest) (model.URLMapping, error)
	Resolve(ctx context.Context, code string) (string, error)
	Lookup(ctx context.Context, code string) (model.URLMapping, error)
	List(ctx context.Context, limit, offset int) ([]model.URLMapping, error)
	ShortURL(code string) string
	Ping(ctx context.Context) error
}

type Handler struct {
	urlService URLService
	buffers    *pool.Pool[*bytes.Buffer]
}

func NewHandler(urlService URLService) *Handler {
	return &Handler{
		urlService: urlService,
		buffers:    pool.New(64, func() *bytes.Buffer { return new(bytes.Buffer) }),
	}
}

func (h *Handler) RegisterRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Use(logger.RequestLogger)

	r.Use(middleware.GzipReader)
	r.Use(middleware.GzipMiddleware)

	r.Post("/shorten", h.handleShorten)
	r.Post("/", h.handleShortenText)
	r.Post("/api/shorten", h.HandleShortenJSON)
	r.Get("/api/urls", h.handleList)
	r.Get("/api/urls/{code}", h.handleLookup)
	r.Get("/ping", h.handlePing)
	r.Get("/{code}", h.handleRedirect)

	return r
}

type shortenRequest struct {
	OriginalURL string `json:"original_url"`
	CustomCode  string `json:"custom_code,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type shortenResponse struct {
	ShortURL string `json:"short_url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleShorten serves the browser form: the response carries the bare code,
// which the page appends to its own origin.
func (h *Handler) handleShorten(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	expiresAt, err := ParseExpiry(req.ExpiresAt)
	if err != nil {
		h.writeError(w, err)
		return
	}

	m, err := h.urlService.Shorten(r.Context(), service.ShortenRequest{
		OriginalURL: strings.TrimSpace(req.OriginalURL),
		CustomCode:  req.CustomCode,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, shortenResponse{ShortURL: m.Code})
}

func (h *Handler) handleShortenText(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Encoding") != "gzip" {
		contentType := r.Header.Get("Content-Type")
		if !strings.Contains(contentType, "text/plain") && contentType != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m, err := h.urlService.Shorten(r.Context(), service.ShortenRequest{
		OriginalURL: strings.TrimSpace(string(body)),
	})
	if err != nil {
		writeTextError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusCreated)
	w.Write([]byte(h.urlService.ShortURL(m.Code)))
}

func (h *Handler) handleRedirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	originalURL, err := h.urlService.Resolve(r.Context(), code)
	if err != nil {
		writeTextError(w, err)
		return
	}

	http.Redirect(w, r, originalURL, http.StatusTemporaryRedirect)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	m, err := h.urlService.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "offset must be an integer"})
		return
	}

	urls, err := h.urlService.List(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if urls == nil {
		urls = []model.URLMapping{}
	}

	h.writeJSON(w, http.StatusOK, urls)
}

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	if err := h.urlService.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("Storage ping failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf := h.buffers.Get()
	defer h.buffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, errorStatus(err), errorResponse{Error: errorMessage(err)})
}

// writeTextError answers the plain-text endpoints.
func writeTextError(w http.ResponseWriter, err error) {
	msg := errorMessage(err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(errorStatus(err))
	io.WriteString(w, msg+"\n")
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidURL),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrInvalidExpiry):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCodeTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides backend details from clients.
func errorMessage(err error) string {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
		if status == http.StatusServiceUnavailable {
			return "storage unavailable, retry later"
		}
		return "internal error"
	}
	return err.Error()
}
