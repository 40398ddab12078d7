package requests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type echo struct {
	Value int `json:"value"`
}

func TestRequestJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path == "/slow" {
			time.Sleep(200 * time.Millisecond)
		}
		var in echo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.Value *= 2
		json.NewEncoder(w).Encode(&in)
	}))
	defer srv.Close()

	out, err := RequestJSON[echo](context.Background(), nil, "POST", srv.URL+"/double", echo{Value: 21})
	require.NoError(t, err)
	require.Equal(t, 42, out.Value)

	_, err = RequestJSON[echo](context.Background(), srv.Client(), "POST", srv.URL+"/fail", echo{})
	require.ErrorContains(t, err, "model not loaded")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = RequestJSON[echo](ctx, nil, "POST", srv.URL+"/slow", echo{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
