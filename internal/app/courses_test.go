package app

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

func discoveryMux(t *testing.T, electivesBody string, electivesStatus int) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(epUserCourses, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"rows":[
			{"user_course_id":101,"course_id":11,"course_name":"Required One","duration":30,"process":0,"is_select":1},
			{"user_course_id":102,"course_id":12,"course_name":"Elective One","duration":45,"process":40,"is_select":1},
			{"user_course_id":103,"course_id":13,"course_name":"Done One","duration":60,"process":100,"is_select":1},
			{"user_course_id":104,"course_id":14,"course_name":"Dropped","duration":10,"process":0,"is_select":0}
		]}`)
	})
	mux.HandleFunc(epElectives, func(w http.ResponseWriter, r *http.Request) {
		if electivesStatus != http.StatusOK {
			w.WriteHeader(electivesStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, electivesBody)
	})
	return mux
}

func TestCourseServiceDiscover(t *testing.T) {
	mux := discoveryMux(t, `{"courses":[{"course_id":12}]}`, http.StatusOK)
	client := newTestClient(t, mux)
	registry := newMemoryRegistry()
	svc := NewCourseService(zerolog.Nop(), client, registry)

	courses, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(courses) != 3 {
		t.Fatalf("want 3 selected courses, got %d", len(courses))
	}

	byID := map[string]domain.Course{}
	for _, c := range courses {
		byID[c.UserCourseID] = c
	}

	req := byID["101"]
	if req.Category != domain.CategoryRequired || req.Completion != domain.CompletionNotStarted {
		t.Fatalf("course 101: %+v", req)
	}
	if req.Duration != 30*60 {
		t.Fatalf("duration should be converted to seconds, got %d", req.Duration)
	}
	if req.Sco != domain.DefaultSco {
		t.Fatalf("sco = %q", req.Sco)
	}

	elec := byID["102"]
	if elec.Category != domain.CategoryElective || elec.Completion != domain.CompletionIncomplete {
		t.Fatalf("course 102: %+v", elec)
	}

	done := byID["103"]
	if done.Completion != domain.CompletionCompleted {
		t.Fatalf("course 103: %+v", done)
	}

	// Completed courses never reach the scheduler seed.
	incomplete, err := registry.ListIncomplete(context.Background())
	if err != nil {
		t.Fatalf("ListIncomplete: %v", err)
	}
	if len(incomplete) != 2 {
		t.Fatalf("want 2 incomplete, got %d", len(incomplete))
	}
}

func TestCourseServiceDiscoverWithoutElectiveCatalogue(t *testing.T) {
	mux := discoveryMux(t, "", http.StatusInternalServerError)
	client := newTestClient(t, mux)
	svc := NewCourseService(zerolog.Nop(), client, newMemoryRegistry())

	courses, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("an unavailable elective catalogue must not fail discovery: %v", err)
	}
	for _, c := range courses {
		if c.Category != domain.CategoryRequired {
			t.Fatalf("course %s should default to required, got %s", c.UserCourseID, c.Category)
		}
	}
}

func TestCourseServiceList(t *testing.T) {
	registry := newMemoryRegistry()
	now := time.Now().UTC()
	_, _ = registry.Upsert(context.Background(), domain.Course{
		UserCourseID: "1", CourseID: "10", Name: "A",
		Category: domain.CategoryRequired, Duration: 600, Progress: 25,
		Completion: domain.CompletionIncomplete, LessonLocation: 150, SessionTime: 150,
		UpdatedAt: now,
	})

	svc := NewCourseService(zerolog.Nop(), nil, registry)
	dtos, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(dtos) != 1 {
		t.Fatalf("want 1 course, got %d", len(dtos))
	}
	if dtos[0].UserCourseID != "1" || dtos[0].Progress != 25 || dtos[0].LessonLocation != 150 {
		t.Fatalf("unexpected dto: %+v", dtos[0])
	}
}
