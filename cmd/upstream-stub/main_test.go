package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRouter(t *testing.T) {
	h := newRouter(zerolog.New(io.Discard))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"path":"/api/login","status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/showTela", nil))
	assert.Contains(t, w.Body.String(), "Tela do Sistema")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nada", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
