package fake

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// DebPath is the path the package is served at.
const DebPath = "/cydia/com.example.app_1.0_iphoneos-arm.deb"

type FakeHandlers struct {
	GetDeb http.HandlerFunc

	NotFound http.HandlerFunc
}

// FakeServer serves a single Debian package.
type FakeServer struct {
	server *httptest.Server

	Handlers *FakeHandlers

	// Deb is the served package.
	Deb []byte

	// Requests counts the package requests.
	Requests int

	Env map[string]string
}

func (s *FakeServer) Close() {
	s.server.Close()
}

// URL returns the package URL.
func (s *FakeServer) URL() string {
	return s.server.URL + DebPath
}

func NewServer(t *testing.T, l *slog.Logger, deb []byte) *FakeServer {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)

	fs := &FakeServer{
		server: server,
		Deb:    deb,
	}

	fs.Env = map[string]string{
		"DEBIPA_URL": fs.URL(),
	}

	log := func(handler *http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			l.Info("got fake request", "method", r.Method, "url", r.URL)
			(*handler)(w, r)
		}
	}

	h := &FakeHandlers{}
	fs.Handlers = h

	h.GetDeb = func(w http.ResponseWriter, r *http.Request) {
		fs.Requests++

		w.Header().Set("Content-Type", "application/vnd.debian.binary-package")
		w.Header().Set("Content-Length", strconv.Itoa(len(fs.Deb)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(fs.Deb); err != nil {
			l.Warn("failed to write fake deb", "err", err)
		}
	}

	mux.HandleFunc("GET "+DebPath, log(&h.GetDeb))

	h.NotFound = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}
	mux.HandleFunc("/", log(&h.NotFound))

	return fs
}

// Status replaces the package handler with one that answers with code.
func (s *FakeServer) Status(code int) {
	s.Handlers.GetDeb = func(w http.ResponseWriter, r *http.Request) {
		s.Requests++
		w.WriteHeader(code)
		fmt.Fprintf(w, "status %d", code)
	}
}
