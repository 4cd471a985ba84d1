package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stub(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body + ":" + r.PathValue("id")))
	}
}

func TestRouterDispatchesByMethod(t *testing.T) {
	router := NewRouter(Routes{
		Health:          stub("health"),
		SelectionGet:    stub("get"),
		SelectionPut:    stub("put"),
		MicrostopCreate: stub("create"),
		MicrostopUpdate: stub("update"),
		MicrostopDelete: stub("delete"),
	})

	cases := []struct {
		method, path string
		code         int
		body         string
		allow        string
	}{
		{http.MethodGet, "/health", http.StatusOK, "health:", ""},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed, "", http.MethodGet},
		{http.MethodGet, "/api/selection", http.StatusOK, "get:", ""},
		{http.MethodPut, "/api/selection", http.StatusOK, "put:", ""},
		{http.MethodDelete, "/api/selection", http.StatusMethodNotAllowed, "", "GET, PUT"},
		{http.MethodPost, "/api/microstops", http.StatusOK, "create:", ""},
		{http.MethodPut, "/api/microstops/17", http.StatusOK, "update:17", ""},
		{http.MethodDelete, "/api/microstops/17", http.StatusOK, "delete:17", ""},
		{http.MethodPost, "/api/microstops/17", http.StatusMethodNotAllowed, "", "DELETE, PUT"},
		{http.MethodGet, "/api/snapshot", http.StatusNotFound, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.code, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
			assert.Equal(t, tc.allow, rec.Header().Get("Allow"))
		})
	}
}
