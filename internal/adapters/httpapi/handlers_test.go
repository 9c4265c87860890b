package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huahua9185/auto-study-advanced/internal/adapters/memorybus"
	"github.com/huahua9185/auto-study-advanced/internal/adapters/sqlite"
	"github.com/huahua9185/auto-study-advanced/internal/app"
	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

func testServer(t *testing.T) (*Server, *sqlite.CoursesRepository) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := sqlite.NewCoursesRepository(db.SQL)
	courses := app.NewCourseService(zerolog.Nop(), nil, repo)
	bus := memorybus.New()
	t.Cleanup(bus.Close)

	return NewServer(zerolog.Nop(), courses, nil, nil, bus), repo
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: want %d, got %d", http.StatusOK, rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHandleVersion(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: want %d, got %d", http.StatusOK, rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["version"] == "" {
		t.Fatalf("version missing: %v", body)
	}
}

func TestHandleStatusWithoutScheduler(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: want %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestHandleSessionWithoutAuth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: want %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestHandleEventsStreamsBusEvents(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bus := memorybus.New()
	t.Cleanup(bus.Close)
	srv := NewServer(zerolog.Nop(), app.NewCourseService(zerolog.Nop(), nil, sqlite.NewCoursesRepository(db.SQL)), nil, nil, bus)
	router := srv.Router()

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(reqCtx)
	rr := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		router.ServeHTTP(rr, req)
		close(served)
	}()

	// Give the handler time to subscribe, then publish and disconnect.
	time.Sleep(100 * time.Millisecond)
	bus.Publish("task.progress", []byte(`{"id":"t1"}`))
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return after client disconnect")
	}

	body := rr.Body.String()
	if !strings.Contains(body, "event: hello") {
		t.Fatalf("missing hello event:\n%s", body)
	}
	if !strings.Contains(body, "event: task.progress") || !strings.Contains(body, `{"id":"t1"}`) {
		t.Fatalf("bus event not forwarded:\n%s", body)
	}
	if rr.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("content type = %q", rr.Header().Get("Content-Type"))
	}
}

func TestHandleCourses(t *testing.T) {
	srv, repo := testServer(t)
	router := srv.Router()

	_, err := repo.Upsert(context.Background(), domain.Course{
		UserCourseID: "10482", CourseID: "913", Name: "Sample",
		Category: domain.CategoryRequired, Duration: 1800, Progress: 10,
		Completion: domain.CompletionIncomplete,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: want %d, got %d", http.StatusOK, rr.Code)
	}
	var body []app.CourseDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(body) != 1 || body[0].UserCourseID != "10482" {
		t.Fatalf("unexpected body: %+v", body)
	}
}
