package scanner

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPScanner_Scan(t *testing.T) {
	tcases := []struct {
		name          string
		status        int
		body          string
		expectedClean bool
		expectErr     bool
	}{
		{name: "clean", status: http.StatusOK, body: `{"clean":true}`, expectedClean: true},
		{name: "infected", status: http.StatusOK, body: `{"clean":false}`, expectedClean: false},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, expectErr: true},
		{name: "invalid json", status: http.StatusOK, body: `not json`, expectErr: true},
		{name: "missing verdict", status: http.StatusOK, body: `{}`, expectErr: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var received []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
				received, _ = io.ReadAll(r.Body)
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s := NewHTTPScanner(srv.URL, time.Second)
			clean, err := s.Scan(context.Background(), []byte("payload"))

			assert.Equal(t, []byte("payload"), received)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedClean, clean)
		})
	}
}

func TestHTTPScanner_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewHTTPScanner(url, 200*time.Millisecond)
	_, err := s.Scan(context.Background(), []byte("payload"))
	assert.Error(t, err)
}
