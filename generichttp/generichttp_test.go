package generichttp_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"

	"github.com/nasa-jpl/mvcam/generichttp"
)

func TestRouteTableBindAndEndpoints(t *testing.T) {
	var got float64
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/gain"}: generichttp.SetFloat(func(f float64) error { got = f; return nil }),
		{Method: http.MethodGet, Path: "/gain"}:  generichttp.GetFloat(func() (float64, error) { return 3.5, nil }),
		{Method: http.MethodGet, Path: "/bad"}:   generichttp.GetBool(func() (bool, error) { return false, errors.New("no") }),
	}
	assert.Equal(t, []string{"GET /bad", "GET /gain", "POST /gain"}, rt.Endpoints())

	r := chi.NewRouter()
	rt.Bind(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gain", strings.NewReader(`{"f64": 2.25}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.25, got)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gain", nil))
	assert.JSONEq(t, `{"f64": 3.5}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gain", strings.NewReader(`nope`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntStringBoolHandlers(t *testing.T) {
	var (
		i int64
		s string
		b bool
	)
	cases := []struct {
		h    http.HandlerFunc
		body string
	}{
		{generichttp.SetInt(func(v int64) error { i = v; return nil }), `{"int": 8164}`},
		{generichttp.SetString(func(v string) error { s = v; return nil }), `{"str": "Software"}`},
		{generichttp.SetBool(func(v bool) error { b = v; return nil }), `{"bool": true}`},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		c.h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(c.body)))
		assert.Equal(t, http.StatusOK, rec.Code, c.body)
	}
	assert.Equal(t, int64(8164), i)
	assert.Equal(t, "Software", s)
	assert.True(t, b)

	rec := httptest.NewRecorder()
	generichttp.GetInt(func() (int64, error) { return 7, nil })(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"int": 7}`, rec.Body.String())

	rec = httptest.NewRecorder()
	generichttp.GetString(func() (string, error) { return "On", nil })(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"str": "On"}`, rec.Body.String())
}

func TestSubMuxSanitize(t *testing.T) {
	assert.Equal(t, "/", generichttp.SubMuxSanitize(""))
	assert.Equal(t, "/", generichttp.SubMuxSanitize("/"))
	assert.Equal(t, "/cam", generichttp.SubMuxSanitize("cam/"))
	assert.Equal(t, "/bench/cam", generichttp.SubMuxSanitize("/bench/cam/"))
}
