package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wricardo/mcp-training/aptracker/game/connection"
	"github.com/wricardo/mcp-training/aptracker/game/tracker"
	"github.com/wricardo/mcp-training/aptracker/transport/websocket"
)

// MockTrackerService implements tracker.Service for testing
type MockTrackerService struct {
	ConnectFunc  func(ctx context.Context, params connection.Parameters) error
	StatusFunc   func(ctx context.Context) (*tracker.Status, error)
	MessagesFunc func(ctx context.Context, opts tracker.HistoryOptions) (*tracker.HistoryResponse, error)
	CountsFunc   func(ctx context.Context) (map[string]int, error)
}

func (m *MockTrackerService) Connect(ctx context.Context, params connection.Parameters) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, params)
	}
	return nil
}

func (m *MockTrackerService) Status(ctx context.Context) (*tracker.Status, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &tracker.Status{Ready: true, Counts: map[string]int{}}, nil
}

func (m *MockTrackerService) Messages(ctx context.Context, opts tracker.HistoryOptions) (*tracker.HistoryResponse, error) {
	if m.MessagesFunc != nil {
		return m.MessagesFunc(ctx, opts)
	}
	return &tracker.HistoryResponse{Messages: []tracker.Entry{}, Page: opts.Page, PageSize: opts.Limit, TotalPages: 1}, nil
}

func (m *MockTrackerService) Counts(ctx context.Context) (map[string]int, error) {
	if m.CountsFunc != nil {
		return m.CountsFunc(ctx)
	}
	return map[string]int{}, nil
}

// Test helpers
func setupTestServer(t *testing.T, mockService *MockTrackerService, opts ...Option) *Server {
	hub := websocket.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return NewServer(mockService, hub, opts...)
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

// Connection Tests

func TestConnect(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*MockTrackerService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "Queue parameters",
			requestBody: map[string]string{"host": "archipelago.gg", "port": "12345", "slot": "Alice", "password": "secret"},
			setupMock: func(m *MockTrackerService) {
				m.ConnectFunc = func(ctx context.Context, params connection.Parameters) error {
					want := connection.Parameters{Host: "archipelago.gg", Port: "12345", Slot: "Alice", Password: "secret"}
					if params != want {
						t.Errorf("Expected parameters %+v, got %+v", want, params)
					}
					return nil
				}
			},
			expectedStatus: http.StatusAccepted,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp struct {
					Parameters connection.Parameters `json:"parameters"`
				}
				parseResponse(t, w, &resp)
				if resp.Parameters.Password != "****" {
					t.Errorf("Expected redacted password, got %q", resp.Parameters.Password)
				}
				if resp.Parameters.Slot != "Alice" {
					t.Errorf("Expected slot Alice, got %s", resp.Parameters.Slot)
				}
			},
		},
		{
			name:        "Missing host and port use defaults",
			requestBody: map[string]string{"slot": "Bob"},
			setupMock: func(m *MockTrackerService) {
				m.ConnectFunc = func(ctx context.Context, params connection.Parameters) error {
					if params.Host != connection.DefaultHost || params.Port != connection.DefaultPort {
						t.Errorf("Expected default address, got %s", params.Address())
					}
					return nil
				}
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "Empty body",
			requestBody:    nil,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "Invalid parameters",
			requestBody: map[string]string{"host": "", "slot": "Bob"},
			setupMock: func(m *MockTrackerService) {
				m.ConnectFunc = func(ctx context.Context, params connection.Parameters) error {
					return params.Validate()
				}
			},
			expectedStatus: http.StatusBadRequest,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if !strings.Contains(resp["error"], "host is required") {
					t.Errorf("Expected host error, got %s", resp["error"])
				}
			},
		},
		{
			name:        "Supervisor not ready",
			requestBody: map[string]string{"slot": "Bob"},
			setupMock: func(m *MockTrackerService) {
				m.ConnectFunc = func(ctx context.Context, params connection.Parameters) error {
					return tracker.ErrNotReady
				}
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:        "Inlet full",
			requestBody: map[string]string{"slot": "Bob"},
			setupMock: func(m *MockTrackerService) {
				m.ConnectFunc = func(ctx context.Context, params connection.Parameters) error {
					return fmt.Errorf("failed to queue connection parameters: %w", connection.ErrInletFull)
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if !strings.Contains(resp["error"], "inlet is full") {
					t.Errorf("Expected inlet error, got %s", resp["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockTrackerService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			server := setupTestServer(t, mockService)
			w := httptest.NewRecorder()
			req := makeRequest("POST", "/api/connection", tt.requestBody)

			server.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestGetConnection(t *testing.T) {
	mockService := &MockTrackerService{
		StatusFunc: func(ctx context.Context) (*tracker.Status, error) {
			return &tracker.Status{
				Ready:            true,
				Parameters:       &connection.Parameters{Host: "localhost", Port: "38281", Slot: "Alice", Password: "****"},
				Slot:             &tracker.SlotInfo{Slot: 2, Name: "Alice", HintPoints: 4},
				MessagesReceived: 7,
				Counts:           map[string]int{"Connected": 1, "PrintJSON": 6},
			}, nil
		},
	}

	server := setupTestServer(t, mockService)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/connection", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp tracker.Status
	parseResponse(t, w, &resp)

	if !resp.Ready {
		t.Error("Expected ready status")
	}
	if resp.Slot == nil || resp.Slot.Name != "Alice" {
		t.Errorf("Expected slot Alice, got %+v", resp.Slot)
	}
	if resp.Counts["PrintJSON"] != 6 {
		t.Errorf("Expected 6 PrintJSON messages, got %d", resp.Counts["PrintJSON"])
	}
	if resp.MessagesReceived != 7 {
		t.Errorf("Expected 7 messages, got %d", resp.MessagesReceived)
	}
}

func TestGetConnectionError(t *testing.T) {
	mockService := &MockTrackerService{
		StatusFunc: func(ctx context.Context) (*tracker.Status, error) {
			return nil, fmt.Errorf("boom")
		},
	}

	server := setupTestServer(t, mockService)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/connection", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

// Message Tests

func TestGetMessages(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		expectedOpts tracker.HistoryOptions
	}{
		{
			name:         "Defaults",
			query:        "",
			expectedOpts: tracker.HistoryOptions{Page: 1, Limit: 20, Order: "desc"},
		},
		{
			name:         "All parameters",
			query:        "?page=2&limit=5&order=asc&cmd=PrintJSON",
			expectedOpts: tracker.HistoryOptions{Page: 2, Limit: 5, Order: "asc", Cmd: "PrintJSON"},
		},
		{
			name:         "Invalid values are ignored",
			query:        "?page=-1&limit=abc&order=sideways",
			expectedOpts: tracker.HistoryOptions{Page: 1, Limit: 20, Order: "desc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got tracker.HistoryOptions
			mockService := &MockTrackerService{
				MessagesFunc: func(ctx context.Context, opts tracker.HistoryOptions) (*tracker.HistoryResponse, error) {
					got = opts
					return &tracker.HistoryResponse{
						Messages:      []tracker.Entry{{Seq: 3, Cmd: "PrintJSON", Text: "hello"}},
						TotalMessages: 1,
						Page:          opts.Page,
						PageSize:      opts.Limit,
						TotalPages:    1,
					}, nil
				},
			}

			server := setupTestServer(t, mockService)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", "/api/messages"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			if got != tt.expectedOpts {
				t.Errorf("Expected options %+v, got %+v", tt.expectedOpts, got)
			}

			var resp struct {
				Messages []struct {
					Seq  uint64 `json:"seq"`
					Cmd  string `json:"cmd"`
					Text string `json:"text"`
				} `json:"messages"`
				TotalMessages int `json:"total_messages"`
			}
			parseResponse(t, w, &resp)
			if len(resp.Messages) != 1 || resp.Messages[0].Text != "hello" {
				t.Errorf("Unexpected messages %+v", resp.Messages)
			}
		})
	}
}

func TestGetMessageCounts(t *testing.T) {
	mockService := &MockTrackerService{
		CountsFunc: func(ctx context.Context) (map[string]int, error) {
			return map[string]int{"PrintJSON": 3, "Connected": 1}, nil
		},
	}

	server := setupTestServer(t, mockService)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/messages/counts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Counts map[string]int `json:"counts"`
		Total  int            `json:"total"`
	}
	parseResponse(t, w, &resp)

	if resp.Total != 4 {
		t.Errorf("Expected total 4, got %d", resp.Total)
	}
	if resp.Counts["PrintJSON"] != 3 {
		t.Errorf("Expected 3 PrintJSON, got %d", resp.Counts["PrintJSON"])
	}
}

// Operational endpoint tests

func TestHealth(t *testing.T) {
	ready := false
	mockService := &MockTrackerService{
		StatusFunc: func(ctx context.Context) (*tracker.Status, error) {
			return &tracker.Status{Ready: ready}, nil
		},
	}
	server := setupTestServer(t, mockService)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 before ready, got %d", w.Code)
	}

	ready = true
	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 when ready, got %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	connection.NewMetrics(reg).Dials.WithLabelValues(connection.SchemeSecure, "ok").Inc()

	server := setupTestServer(t, &MockTrackerService{}, WithGatherer(reg))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `aptracker_connection_dials_total{result="ok",scheme="wss"} 1`) {
		t.Errorf("Expected dial counter in metrics output, got:\n%s", w.Body.String())
	}
}

func TestMCPEndpoint(t *testing.T) {
	called := false
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	})

	server := setupTestServer(t, &MockTrackerService{}, WithMCPHandler(mcpHandler))

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/mcp", map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "ping"}))
	if w.Code != http.StatusOK || !called {
		t.Errorf("Expected MCP handler to serve POST, got status %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/mcp", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405 for GET /mcp, got %d", w.Code)
	}
}

func TestMCPEndpointAbsentByDefault(t *testing.T) {
	server := setupTestServer(t, &MockTrackerService{})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/mcp", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 without MCP handler, got %d", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server := setupTestServer(t, &MockTrackerService{})

	tests := []struct {
		method         string
		path           string
		expectedStatus int
	}{
		{"DELETE", "/api/connection", http.StatusMethodNotAllowed},
		{"PUT", "/api/connection", http.StatusMethodNotAllowed},
		{"POST", "/api/messages", http.StatusMethodNotAllowed},
		{"DELETE", "/api/messages/counts", http.StatusMethodNotAllowed},
		{"GET", "/api/sessions", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest(tt.method, tt.path, nil))
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}
