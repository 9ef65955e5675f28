package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"extinguisher-12"}`))
	if err := ParseJSON(req, &dest); err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if dest.Name != "extinguisher-12" {
		t.Errorf("name = %q", dest.Name)
	}
}

func TestParseJSONInvalid(t *testing.T) {
	var dest map[string]interface{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	if err := ParseJSON(req, &dest); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParsePathInt64OrError(t *testing.T) {
	router := mux.NewRouter()
	var got int64
	var ok bool
	router.HandleFunc("/inspections/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, ok = ParsePathInt64OrError(w, r, "id")
	})

	req := httptest.NewRequest(http.MethodGet, "/inspections/42", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if !ok {
		t.Fatal("ParsePathInt64OrError returned false for a numeric id")
	}
	if got != 42 {
		t.Errorf("id = %d, want 42", got)
	}
}

func TestParsePathInt64OrErrorInvalid(t *testing.T) {
	router := mux.NewRouter()
	var ok bool
	rec := httptest.NewRecorder()
	router.HandleFunc("/inspections/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, ok = ParsePathInt64OrError(w, r, "id")
	})

	req := httptest.NewRequest(http.MethodGet, "/inspections/abc", nil)
	router.ServeHTTP(rec, req)

	if ok {
		t.Error("expected false for non-numeric id")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notifications?limit=25", nil)
	val, err := ParseQueryInt(req, "limit", 50)
	if err != nil {
		t.Fatalf("ParseQueryInt: %v", err)
	}
	if val != 25 {
		t.Errorf("limit = %d, want 25", val)
	}

	val, err = ParseQueryInt(req, "offset", 0)
	if err != nil {
		t.Fatalf("ParseQueryInt default: %v", err)
	}
	if val != 0 {
		t.Errorf("offset = %d, want default 0", val)
	}
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notifications?unread_only=true", nil)
	val, err := ParseQueryBool(req, "unread_only", false)
	if err != nil {
		t.Fatalf("ParseQueryBool: %v", err)
	}
	if !val {
		t.Error("unread_only = false, want true")
	}
}
