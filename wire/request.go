// Package wire implements the binary-safe, length-prefixed, line-framed
// text protocol the server speaks: put/get/getc/dump/dumpc/save/discon/quit.
package wire

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Verb identifies a request kind. Verbs are matched case-insensitively
// on the wire and normalized to lower case here.
type Verb string

const (
	VerbPut    Verb = "put"
	VerbGet    Verb = "get"
	VerbGetc   Verb = "getc"
	VerbDump   Verb = "dump"
	VerbDumpc  Verb = "dumpc"
	VerbSave   Verb = "save"
	VerbDiscon Verb = "discon"
	VerbQuit   Verb = "quit"
)

// maxVerbLen and maxNumLen bound the verb and decimal-length fields
// against unbounded reads from a misbehaving or hostile client.
const (
	maxVerbLen = 20
	maxNumLen  = 20
)

// Request is one parsed client command. Label/Data/Query are only
// populated for the verbs that carry them.
type Request struct {
	Verb  Verb
	Label []byte
	Data  []byte
	Query []byte
}

// ErrInvalidRequest signals a protocol violation: unknown verb,
// oversize field, or malformed length prefix. The connection handling
// this error must be terminated without a response, per the wire
// protocol's error taxonomy.
var ErrInvalidRequest = errors.New("wire: invalid request")

// ReadRequest parses exactly one request from r.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	verbBytes, err := readUntilWhitespace(r, maxVerbLen)
	if err != nil {
		return nil, err
	}

	switch Verb(strings.ToLower(string(verbBytes))) {
	case VerbQuit:
		return &Request{Verb: VerbQuit}, nil
	case VerbDiscon:
		return &Request{Verb: VerbDiscon}, nil
	case VerbDump:
		return &Request{Verb: VerbDump}, nil
	case VerbDumpc:
		return &Request{Verb: VerbDumpc}, nil
	case VerbSave:
		return &Request{Verb: VerbSave}, nil
	case VerbPut:
		return readPutRequest(r)
	case VerbGetc:
		return readQueryRequest(r, VerbGetc)
	case VerbGet:
		return readQueryRequest(r, VerbGet)
	default:
		return nil, errors.Wrapf(ErrInvalidRequest, "unknown verb %q", verbBytes)
	}
}

func readPutRequest(r *bufio.Reader) (*Request, error) {
	label, err := readLengthPrefixedPayload(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading put label")
	}
	data, err := readLengthPrefixedPayload(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading put data")
	}
	return &Request{Verb: VerbPut, Label: label, Data: data}, nil
}

func readQueryRequest(r *bufio.Reader, verb Verb) (*Request, error) {
	query, err := readLengthPrefixedPayload(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s query", verb)
	}
	return &Request{Verb: verb, Query: query}, nil
}

// readLengthPrefixedPayload reads "LEN<ws>" followed by exactly LEN raw
// bytes, the binary-safe "LEN " framing used throughout the protocol.
func readLengthPrefixedPayload(r *bufio.Reader) ([]byte, error) {
	n, err := readNum(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidRequest, "negative length %d", n)
	}
	return readExact(r, n)
}

// readUntilWhitespace skips any leading whitespace, then reads bytes up
// to the next whitespace byte, returning everything in between. Bounded
// to maxLen non-whitespace bytes. The leading skip absorbs the
// separator left behind by a preceding readExact, which does not
// consume it itself since the payload it reads is binary-safe and must
// not be whitespace-sensitive.
func readUntilWhitespace(r *bufio.Reader, maxLen int) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "reading token")
		}
		if !isASCIIWhitespace(b) {
			if err := r.UnreadByte(); err != nil {
				return nil, errors.Wrap(err, "reading token")
			}
			break
		}
	}

	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "reading token")
		}
		if isASCIIWhitespace(b) {
			return buf, nil
		}
		if len(buf) >= maxLen {
			return nil, errors.Wrapf(ErrInvalidRequest, "token exceeds %d bytes", maxLen)
		}
		buf = append(buf, b)
	}
}

// readNum reads a decimal ASCII length field terminated by whitespace.
func readNum(r *bufio.Reader) (int, error) {
	digits, err := readUntilWhitespace(r, maxNumLen)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidRequest, "malformed length %q", digits)
	}
	return n, nil
}

// readExact reads exactly n bytes, binary-safe (NULs and newlines
// included). A short read at EOF is a protocol error.
func readExact(r *bufio.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "short read")
	}
	return buf, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func isASCIIWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
