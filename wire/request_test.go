package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePut(label, data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "put %d ", len(label))
	buf.Write(label)
	fmt.Fprintf(&buf, " %d ", len(data))
	buf.Write(data)
	return buf.Bytes()
}

func TestReadRequestPutRoundTrip(t *testing.T) {
	label := []byte("my label")
	data := []byte("the data payload")

	r := bufio.NewReader(bytes.NewReader(encodePut(label, data)))
	req, err := ReadRequest(r)
	require.NoError(t, err)

	assert.Equal(t, VerbPut, req.Verb)
	assert.Equal(t, label, req.Label)
	assert.Equal(t, data, req.Data)
}

func TestReadRequestPutRoundTripBinarySafe(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		label := randomBytes(rng, rng.Intn(40))
		data := randomBytesWithSpecials(rng, rng.Intn(200))

		r := bufio.NewReader(bytes.NewReader(encodePut(label, data)))
		req, err := ReadRequest(r)
		require.NoError(t, err)
		assert.Equal(t, label, req.Label)
		assert.Equal(t, data, req.Data)
	}
}

func TestReadRequestGetAndGetc(t *testing.T) {
	for _, verb := range []string{"get", "getc", "GET", "GeTc"} {
		query := []byte("search term")
		line := fmt.Sprintf("%s %d ", verb, len(query))
		r := bufio.NewReader(bytes.NewReader(append([]byte(line), query...)))
		req, err := ReadRequest(r)
		require.NoError(t, err)
		assert.Equal(t, query, req.Query)
	}
}

func TestReadRequestSimpleVerbs(t *testing.T) {
	cases := map[string]Verb{
		"quit\n":   VerbQuit,
		"discon\n": VerbDiscon,
		"dump\n":   VerbDump,
		"dumpc\n":  VerbDumpc,
		"save\n":   VerbSave,
		"QUIT\n":   VerbQuit,
	}
	for line, want := range cases {
		r := bufio.NewReader(bytes.NewReader([]byte(line)))
		req, err := ReadRequest(r)
		require.NoError(t, err)
		assert.Equal(t, want, req.Verb)
	}
}

func TestReadRequestUnknownVerbIsInvalid(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("bogus \n")))
	_, err := ReadRequest(r)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReadRequestOversizeVerbIsInvalid(t *testing.T) {
	line := make([]byte, maxVerbLen+5)
	for i := range line {
		line[i] = 'a'
	}
	line = append(line, ' ')
	r := bufio.NewReader(bytes.NewReader(line))
	_, err := ReadRequest(r)
	assert.Error(t, err)
}

func TestReadRequestShortPayloadAtEOFIsError(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("put 5 ab")))
	_, err := ReadRequest(r)
	assert.Error(t, err)
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

// randomBytesWithSpecials biases toward NULs, 0xFF runs and newlines to
// exercise the binary-safe framing.
func randomBytesWithSpecials(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		switch rng.Intn(5) {
		case 0:
			b[i] = 0x00
		case 1:
			b[i] = 0xFF
		case 2:
			b[i] = '\n'
		default:
			b[i] = byte(rng.Intn(256))
		}
	}
	return b
}
