package testutil

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Capture represents a captured HTTP request with timestamp.
type Capture struct {
	Method      string // HTTP method
	Path        string
	APIMethod   string // Bot API method, e.g. "getUpdates"
	Headers     http.Header
	Body        []byte
	ContentType string
	Timestamp   time.Time
}

// AssertJSONField verifies a top-level JSON body field.
// Numbers decode as float64.
func (c *Capture) AssertJSONField(t *testing.T, field string, expected any) {
	t.Helper()
	body := c.BodyMap(t)
	assert.Equal(t, expected, body[field], "unexpected value for field: "+field)
}

// AssertJSONFieldAbsent verifies a JSON field is NOT present in the body.
func (c *Capture) AssertJSONFieldAbsent(t *testing.T, field string) {
	t.Helper()
	body := c.BodyMap(t)
	_, exists := body[field]
	assert.False(t, exists, "field should be absent: "+field)
}

// BodyJSON unmarshals the request body into target.
func (c *Capture) BodyJSON(t *testing.T, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(c.Body, target), "failed to parse body JSON")
}

// BodyMap returns the request body as a map.
func (c *Capture) BodyMap(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	c.BodyJSON(t, &m)
	return m
}
