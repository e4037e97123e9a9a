package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOK(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOK(&buf, 3))
	assert.Equal(t, "OK 3\n", buf.String())
}

func TestWriteNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNG(&buf, "could not put the requested document"))
	assert.Equal(t, "NG could not put the requested document\n", buf.String())
}

func TestWriteGetRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGetRecord(&buf, []byte("lbl"), 7, []byte("snippet")))
	assert.Equal(t, "3 lbl 7 7 snippet\n", buf.String())
}

func TestWriteDumpRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDumpRecord(&buf, []byte("lbl"), []byte("data here")))
	assert.Equal(t, "3 lbl 9 data here\n", buf.String())
}

func TestWriteTerminator(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTerminator(&buf))
	assert.Equal(t, "0\n", buf.String())
}
