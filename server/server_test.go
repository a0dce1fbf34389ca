package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tejiriaustin/resource-monitor/checksum"
	"github.com/tejiriaustin/resource-monitor/config"
	"github.com/tejiriaustin/resource-monitor/logger"
	"github.com/tejiriaustin/resource-monitor/models"
	"github.com/tejiriaustin/resource-monitor/monitoring"
)

// MockMonitor is a mock implementation of the Monitor interface
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) AddResource(path string) (models.TrackedResource, error) {
	args := m.Called(path)
	return args.Get(0).(models.TrackedResource), args.Error(1)
}

func (m *MockMonitor) RemoveResource(path string) bool {
	args := m.Called(path)
	return args.Bool(0)
}

func (m *MockMonitor) Resources() []models.TrackedResource {
	args := m.Called()
	return args.Get(0).([]models.TrackedResource)
}

func (m *MockMonitor) Stats() monitoring.Stats {
	args := m.Called()
	return args.Get(0).(monitoring.Stats)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Close() error {
	return m.Called().Error(0)
}

func (m *MockRepository) CreateChangeEventsTable() error {
	return m.Called().Error(0)
}

func (m *MockRepository) InsertChangeEvent(event models.ChangeEvent) (int64, error) {
	args := m.Called(event)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetChangeEvents(limit int) ([]models.ChangeEvent, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.ChangeEvent), args.Error(1)
}

func (m *MockRepository) GetChangeEventsByPath(path string, limit int) ([]models.ChangeEvent, error) {
	args := m.Called(path, limit)
	return args.Get(0).([]models.ChangeEvent), args.Error(1)
}

func TestNew(t *testing.T) {
	cfg := &config.Config{Port: ":8080"}
	log := &logger.Logger{}
	server := New(cfg, log)
	assert.NotNil(t, server)
	assert.Equal(t, cfg, server.cfg)
	assert.Equal(t, ":8080", server.server.Addr)
	assert.Equal(t, log, server.logger)
}

func TestHandler_Endpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	detectedAt := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	resource := models.TrackedResource{Path: "/data/file1", Length: 10240, Digest: "abc"}

	mockMonitor := new(MockMonitor)
	mockMonitor.On("Resources").Return([]models.TrackedResource{resource})
	mockMonitor.On("Stats").Return(monitoring.Stats{Passes: 3, Resources: 1})
	mockMonitor.On("AddResource", "/data/file1").Return(resource, nil)
	mockMonitor.On("AddResource", "/data/missing").Return(models.TrackedResource{},
		&checksum.IOError{Op: "resolve", Path: "/data/missing", Err: os.ErrNotExist})
	mockMonitor.On("AddResource", "/data/unreadable").Return(models.TrackedResource{},
		&checksum.IOError{Op: "read", Path: "/data/unreadable", Err: errors.New("permission denied")})
	mockMonitor.On("RemoveResource", "/data/file1").Return(true)
	mockMonitor.On("RemoveResource", "/data/unknown").Return(false)

	mockRepo := new(MockRepository)
	mockRepo.On("GetChangeEvents", 0).Return([]models.ChangeEvent{
		{ID: 1, Kind: models.Deleted, Path: "/data/file3", DetectedAt: detectedAt},
	}, nil)
	mockRepo.On("GetChangeEventsByPath", "/data/file2", 5).Return([]models.ChangeEvent(nil), nil)

	newLogger, err := logger.NewLogger(logger.Config{})
	assert.NoError(t, err)

	h := NewHandler(newLogger, 0, 0)
	router := h.SetupHandler(mockMonitor, mockRepo)

	tests := []struct {
		name           string
		method         string
		url            string
		body           interface{}
		expectedStatus int
		expectedBody   interface{}
	}{
		{
			name:           "Health Check",
			method:         "GET",
			url:            "/health",
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]interface{}{"status": "alive and well"},
		},
		{
			name:           "Retrieve Events",
			method:         "GET",
			url:            "/events",
			expectedStatus: http.StatusOK,
			expectedBody: []interface{}{map[string]interface{}{
				"id": float64(1), "kind": "deleted", "path": "/data/file3", "detected_at": "2024-07-01T12:00:00Z",
			}},
		},
		{
			name:           "Retrieve Events By Path",
			method:         "GET",
			url:            "/events?path=/data/file2&limit=5",
			expectedStatus: http.StatusOK,
			expectedBody:   []interface{}{},
		},
		{
			name:           "Invalid Limit",
			method:         "GET",
			url:            "/events?limit=-3",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": "limit must be a non-negative integer"},
		},
		{
			name:           "Stats",
			method:         "GET",
			url:            "/stats",
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"passes": float64(3), "events_dispatched": float64(0), "errors": float64(0),
				"listener_failures": float64(0), "resources": float64(1), "listeners": float64(0),
			},
		},
		{
			name:           "List Resources",
			method:         "GET",
			url:            "/resources",
			expectedStatus: http.StatusOK,
			expectedBody: []interface{}{map[string]interface{}{
				"path": "/data/file1", "length": float64(10240), "digest": "abc",
			}},
		},
		{
			name:           "Track Resource",
			method:         "POST",
			url:            "/resources",
			body:           gin.H{"path": "/data/file1"},
			expectedStatus: http.StatusCreated,
			expectedBody: map[string]interface{}{
				"path": "/data/file1", "length": float64(10240), "digest": "abc",
			},
		},
		{
			name:           "Track Missing Resource",
			method:         "POST",
			url:            "/resources",
			body:           gin.H{"path": "/data/missing"},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Track Unreadable Resource",
			method:         "POST",
			url:            "/resources",
			body:           gin.H{"path": "/data/unreadable"},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "Empty Path",
			method:         "POST",
			url:            "/resources",
			body:           gin.H{"path": ""},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Relative Path",
			method:         "POST",
			url:            "/resources",
			body:           gin.H{"path": "data/file1"},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": "invalid path: must be absolute"},
		},
		{
			name:           "Untrack Resource",
			method:         "DELETE",
			url:            "/resources",
			body:           gin.H{"path": "/data/file1"},
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]interface{}{"status": "resource untracked"},
		},
		{
			name:           "Untrack Unknown Resource",
			method:         "DELETE",
			url:            "/resources",
			body:           gin.H{"path": "/data/unknown"},
			expectedStatus: http.StatusNotFound,
			expectedBody:   map[string]interface{}{"error": "resource not tracked"},
		},
		{
			name:           "Unknown Route",
			method:         "GET",
			url:            "/nowhere",
			expectedStatus: http.StatusNotFound,
			expectedBody:   map[string]interface{}{"status": "not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			var req *http.Request

			if tt.body != nil {
				jsonBody, _ := json.Marshal(tt.body)
				req, _ = http.NewRequest(tt.method, tt.url, bytes.NewBuffer(jsonBody))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req, _ = http.NewRequest(tt.method, tt.url, nil)
			}

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedBody != nil {
				var response interface{}
				err := json.Unmarshal(w.Body.Bytes(), &response)
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedBody, response)
			}
		})
	}

	mockMonitor.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestHandler_RateLimitsControlEndpoints(t *testing.T) {
	mockMonitor := new(MockMonitor)
	mockMonitor.On("RemoveResource", "/data/file1").Return(true)
	mockMonitor.On("Resources").Return([]models.TrackedResource{})

	h := NewHandler(logger.NewNop(), 1, 1)
	router := h.SetupHandler(mockMonitor, new(MockRepository))

	untrack := func() int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/resources", bytes.NewBufferString(`{"path":"/data/file1"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, untrack())
	assert.Equal(t, http.StatusTooManyRequests, untrack())

	// reads are not limited
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/resources", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	mockMonitor.AssertNumberOfCalls(t, "RemoveResource", 1)
}

func TestServer_setupRouter(t *testing.T) {
	mockLogger, err := logger.NewLogger(logger.Config{})
	assert.NoError(t, err)

	handler := NewHandler(mockLogger, 60, 10)
	router := handler.SetupHandler(new(MockMonitor), new(MockRepository))

	assert.NotNil(t, router)

	expectedRoutes := []string{"/health", "/stats", "/events", "/resources"}
	routes := router.Routes()

	assert.Len(t, routes, 6)

	for _, route := range routes {
		assert.Contains(t, expectedRoutes, route.Path)
	}
}

func TestServer_Start(t *testing.T) {
	cfg := &config.Config{Port: "127.0.0.1:0"}
	s := New(cfg, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start(ctx, http.NotFoundHandler())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
