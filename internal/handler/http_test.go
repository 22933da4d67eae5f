package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailRaia/shortcode/internal/generator"
	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/service"
	"github.com/MikhailRaia/shortcode/internal/storage/memory"
)

const testBaseURL = "http://localhost:8080"

type mockURLService struct {
	shortenFunc func(ctx context.Context, req service.ShortenRequest) (model.URLMapping, error)
	resolveFunc func(ctx context.Context, code string) (string, error)
	lookupFunc  func(ctx context.Context, code string) (model.URLMapping, error)
	listFunc    func(ctx context.Context, limit, offset int) ([]model.URLMapping, error)
	pingFunc    func(ctx context.Context) error
}

func (m *mockURLService) Shorten(ctx context.Context, req service.ShortenRequest) (model.URLMapping, error) {
	return m.shortenFunc(ctx, req)
}

func (m *mockURLService) Resolve(ctx context.Context, code string) (string, error) {
	return m.resolveFunc(ctx, code)
}

func (m *mockURLService) Lookup(ctx context.Context, code string) (model.URLMapping, error) {
	return m.lookupFunc(ctx, code)
}

func (m *mockURLService) List(ctx context.Context, limit, offset int) ([]model.URLMapping, error) {
	return m.listFunc(ctx, limit, offset)
}

func (m *mockURLService) ShortURL(code string) string {
	return testBaseURL + "/" + code
}

func (m *mockURLService) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := service.NewURLService(memory.NewStorage(), generator.NewRandomGenerator(7), service.Options{BaseURL: testBaseURL})
	return NewHandler(svc).RegisterRoutes()
}

func withCode(req *http.Request, code string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("code", code)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandler_handleShorten(t *testing.T) {
	tests := []struct {
		name        string
		requestBody string
		mockErr     error
		wantStatus  int
		wantBody    string
	}{
		{
			name:        "Valid request",
			requestBody: `{"original_url":"https://example.com"}`,
			wantStatus:  http.StatusOK,
			wantBody:    `{"short_url":"abc1234"}`,
		},
		{
			name:        "Malformed JSON",
			requestBody: `{"original_url":`,
			wantStatus:  http.StatusBadRequest,
			wantBody:    `{"error":"invalid JSON body"}`,
		},
		{
			name:        "Invalid URL",
			requestBody: `{"original_url":"not-a-url"}`,
			mockErr:     fmt.Errorf("%w: scheme must be http or https", service.ErrInvalidURL),
			wantStatus:  http.StatusBadRequest,
			wantBody:    `{"error":"invalid url: scheme must be http or https"}`,
		},
		{
			name:        "Bad expiry",
			requestBody: `{"original_url":"https://example.com","expires_at":"tomorrow"}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "Custom code taken",
			requestBody: `{"original_url":"https://example.com","custom_code":"promo"}`,
			mockErr:     service.ErrCodeTaken,
			wantStatus:  http.StatusConflict,
			wantBody:    `{"error":"code is already taken"}`,
		},
		{
			name:        "Storage down",
			requestBody: `{"original_url":"https://example.com"}`,
			mockErr:     fmt.Errorf("%w: connection refused", service.ErrStorage),
			wantStatus:  http.StatusServiceUnavailable,
			wantBody:    `{"error":"storage unavailable, retry later"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &mockURLService{
				shortenFunc: func(_ context.Context, req service.ShortenRequest) (model.URLMapping, error) {
					if tt.mockErr != nil {
						return model.URLMapping{}, tt.mockErr
					}
					return model.URLMapping{Code: "abc1234", OriginalURL: req.OriginalURL}, nil
				},
			}

			handler := NewHandler(mockService)

			req := httptest.NewRequest(http.MethodPost, "/shorten", bytes.NewBufferString(tt.requestBody))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()

			handler.handleShorten(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestHandler_handleShortenPassesOptions(t *testing.T) {
	var got service.ShortenRequest
	mockService := &mockURLService{
		shortenFunc: func(_ context.Context, req service.ShortenRequest) (model.URLMapping, error) {
			got = req
			return model.URLMapping{Code: req.CustomCode}, nil
		},
	}

	body := `{"original_url":" https://example.com ","custom_code":"promo","expires_at":"2030-01-02"}`
	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(body))
	rr := httptest.NewRecorder()

	NewHandler(mockService).handleShorten(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://example.com", got.OriginalURL)
	assert.Equal(t, "promo", got.CustomCode)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC), *got.ExpiresAt)
}

func TestHandler_handleShortenText(t *testing.T) {
	tests := []struct {
		name        string
		requestBody string
		contentType string
		wantStatus  int
		wantBody    string
	}{
		{
			name:        "Valid request",
			requestBody: "https://example.com",
			contentType: "text/plain",
			wantStatus:  http.StatusCreated,
			wantBody:    "http://localhost:8080/abc1234",
		},
		{
			name:        "Empty URL",
			requestBody: "",
			contentType: "text/plain",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "Invalid content type",
			requestBody: "https://example.com",
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &mockURLService{
				shortenFunc: func(_ context.Context, req service.ShortenRequest) (model.URLMapping, error) {
					if err := service.ValidateURL(req.OriginalURL); err != nil {
						return model.URLMapping{}, err
					}
					return model.URLMapping{Code: "abc1234", OriginalURL: req.OriginalURL}, nil
				},
			}

			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.requestBody))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			NewHandler(mockService).handleShortenText(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, strings.TrimSpace(rr.Body.String()))
			}
		})
	}
}

func TestHandler_handleRedirect(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		mockOrigURL  string
		mockErr      error
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "Valid redirect",
			code:         "abc1234",
			mockOrigURL:  "https://example.com",
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "https://example.com",
		},
		{
			name:       "Code not found",
			code:       "nonexistent",
			mockErr:    service.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Malformed code",
			code:       "bad!code",
			mockErr:    service.ErrInvalidCode,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Expired code",
			code:       "old1234",
			mockErr:    service.ErrExpired,
			wantStatus: http.StatusGone,
		},
		{
			name:       "Storage failure",
			code:       "abc1234",
			mockErr:    service.ErrStorage,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "Unexpected failure",
			code:       "abc1234",
			mockErr:    errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &mockURLService{
				resolveFunc: func(_ context.Context, code string) (string, error) {
					assert.Equal(t, tt.code, code)
					return tt.mockOrigURL, tt.mockErr
				},
			}

			req := withCode(httptest.NewRequest(http.MethodGet, "/"+tt.code, nil), tt.code)
			rr := httptest.NewRecorder()

			NewHandler(mockService).handleRedirect(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rr.Header().Get("Location"))
			} else {
				assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
			}
		})
	}
}

func TestWriteTextError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeTextError(rr, service.ErrExpired)
	assert.Equal(t, http.StatusGone, rr.Code)
	assert.Equal(t, "short code has expired\n", rr.Body.String())

	rr = httptest.NewRecorder()
	writeTextError(rr, fmt.Errorf("%w: dial tcp 10.0.0.5:5432", service.ErrStorage))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.5")
}

func TestHandler_handleLookup(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mockService := &mockURLService{
		lookupFunc: func(_ context.Context, code string) (model.URLMapping, error) {
			if code != "abc1234" {
				return model.URLMapping{}, service.ErrNotFound
			}
			return model.URLMapping{Code: code, OriginalURL: "https://example.com", CreatedAt: created}, nil
		},
	}
	h := NewHandler(mockService)

	rr := httptest.NewRecorder()
	h.handleLookup(rr, withCode(httptest.NewRequest(http.MethodGet, "/api/urls/abc1234", nil), "abc1234"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"code":"abc1234","original_url":"https://example.com","created_at":"2026-03-01T12:00:00Z"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.handleLookup(rr, withCode(httptest.NewRequest(http.MethodGet, "/api/urls/zzz", nil), "zzz"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_handleList(t *testing.T) {
	var gotLimit, gotOffset int
	mockService := &mockURLService{
		listFunc: func(_ context.Context, limit, offset int) ([]model.URLMapping, error) {
			gotLimit, gotOffset = limit, offset
			return nil, nil
		},
	}
	h := NewHandler(mockService)

	rr := httptest.NewRecorder()
	h.handleList(rr, httptest.NewRequest(http.MethodGet, "/api/urls?limit=10&offset=20", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, 20, gotOffset)

	rr = httptest.NewRecorder()
	h.handleList(rr, httptest.NewRequest(http.MethodGet, "/api/urls?limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_handlePing(t *testing.T) {
	h := NewHandler(&mockURLService{})
	rr := httptest.NewRecorder()
	h.handlePing(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	h = NewHandler(&mockURLService{pingFunc: func(context.Context) error { return errors.New("db down") }})
	rr = httptest.NewRecorder()
	h.handlePing(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandler_RegisterRoutes(t *testing.T) {
	router := NewHandler(&mockURLService{}).RegisterRoutes()
	require.NotNil(t, router)

	_, ok := router.(*chi.Mux)
	assert.True(t, ok, "RegisterRoutes must return a chi.Mux")
}

func TestRouter_ShortenThenRedirect(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(`{"original_url":"https://example.com/a/very/long/path"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp shortenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Regexp(t, `^[0-9A-Za-z]{7}$`, resp.ShortURL)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/"+resp.ShortURL, nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.Equal(t, "https://example.com/a/very/long/path", rr.Header().Get("Location"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/urls/"+resp.ShortURL, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), resp.ShortURL)
}

func TestRouter_Errors(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/Zz9Zz9Z", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/bad%21code", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(`{"original_url":"not-a-url"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid url")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_CustomCodeConflict(t *testing.T) {
	router := newTestRouter(t)

	body := `{"original_url":"https://example.com","custom_code":"promo"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"short_url":"promo"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rr.Code)
}
