package httpfetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchReturnsBodyOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d8:announce...e"))
	}))
	defer srv.Close()

	got, err := Fetch(srv.URL, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "d8:announce...e" {
		t.Fatalf("body = %q", got)
	}
}

func TestFetchErrorsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := Fetch(srv.URL, ""); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}
