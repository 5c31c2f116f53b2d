package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetFlagsAndAccessors(t *testing.T) {
	SetFlags(true, false, true)
	require.True(t, IsJSON())
	require.False(t, IsQuiet())
	require.True(t, IsVerbose())

	SetFlags(false, true, false)
	require.False(t, IsJSON())
	require.True(t, IsQuiet())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"a": 1}))
	require.JSONEq(t, `{"a":1}`, buf.String())
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintError(&buf, "bad_input", "missing --pool"))
	require.JSONEq(t, `{"error":"bad_input","message":"missing --pool"}`, buf.String())
}
