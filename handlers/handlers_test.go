package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// Request validation is checked before any service is touched, so a bare
// Handlers value is enough for these cases.
func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &Handlers{}

	router := gin.New()
	router.POST("/api/v3/reports", h.SubmitReport)
	router.POST("/api/v3/route/score", h.ScoreRoute)
	router.POST("/api/v3/comunas/subscribe", h.Subscribe)
	router.GET("/api/v3/map", h.GetMap)
	router.GET("/api/v3/route/safest", h.SafestRoute)
	return router
}

func TestVersionCheck(t *testing.T) {
	router := testRouter()

	testCases := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
	}{
		{
			name:           "submit with old version",
			path:           "/api/v3/reports",
			body:           `{"version": "1.0", "reporter_id": "u1"}`,
			expectedStatus: http.StatusNotAcceptable,
		},
		{
			name:           "submit with invalid json",
			path:           "/api/v3/reports",
			body:           `{not json`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "route score with missing version",
			path:           "/api/v3/route/score",
			body:           `{"points": []}`,
			expectedStatus: http.StatusNotAcceptable,
		},
		{
			name:           "subscribe with wrong version",
			path:           "/api/v3/comunas/subscribe",
			body:           `{"version": "3.0", "comuna_id": 1, "email": "a@b.cl"}`,
			expectedStatus: http.StatusNotAcceptable,
		},
		{
			name:           "subscribe without email",
			path:           "/api/v3/comunas/subscribe",
			body:           `{"version": "2.0", "comuna_id": 1}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("Status: got %d, want %d", w.Code, tc.expectedStatus)
			}
		})
	}
}

func TestViewportValidation(t *testing.T) {
	router := testRouter()

	testCases := []struct {
		name           string
		query          string
		expectedStatus int
	}{
		{
			name:           "missing parameters",
			query:          "latmin=-33.47",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "non-numeric parameter",
			query:          "latmin=a&lonmin=-70.7&latmax=-33.4&lonmax=-70.6",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty viewport",
			query:          "latmin=-33.4&lonmin=-70.6&latmax=-33.4&lonmax=-70.6",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v3/map?"+tc.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("Status: got %d, want %d", w.Code, tc.expectedStatus)
			}
		})
	}
}

func TestSafestRouteParamValidation(t *testing.T) {
	router := testRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v3/route/safest?from_lat=-33.44", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}
