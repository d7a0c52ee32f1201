package router

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

func rawField(t *testing.T, w *httptest.ResponseRecorder, name string) string {
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	raw, ok := body[name]
	require.True(t, ok, "missing field %s", name)
	return string(raw)
}

func decodeField(t *testing.T, w *httptest.ResponseRecorder, name string) string {
	var s string
	require.NoError(t, json.Unmarshal([]byte(rawField(t, w, name)), &s))
	return s
}
