package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoWholeRequestTimeout(t *testing.T) {
	c := New(DefaultConfig())
	assert.Zero(t, c.Timeout, "long polls are bounded by context, not the client")

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, tr.TLSHandshakeTimeout)
	assert.Zero(t, tr.ResponseHeaderTimeout)
}

func TestDoJSON_SetsHeaders(t *testing.T) {
	var gotCT, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{}`))
	require.NoError(t, err)

	resp, err := DoJSON(context.Background(), NewDefault(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "application/json", gotAccept)
}
