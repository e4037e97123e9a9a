package wire

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// WriteOK writes the success-count response: "OK <n>\n".
func WriteOK(w io.Writer, n int) error {
	return writeAll(w, []byte(fmt.Sprintf("OK %d\n", n)))
}

// WriteNG writes the failure response: "NG <reason>\n".
func WriteNG(w io.Writer, reason string) error {
	return writeAll(w, []byte(fmt.Sprintf("NG %s\n", reason)))
}

// WriteGetRecord writes one occurrence record of a get result stream:
// "LABEL_LEN LABEL OFFSET SNIPPET_LEN SNIPPET\n".
func WriteGetRecord(w io.Writer, label []byte, offset int, snippet []byte) error {
	if err := writeAll(w, []byte(fmt.Sprintf("%d ", len(label)))); err != nil {
		return err
	}
	if err := writeAll(w, label); err != nil {
		return err
	}
	if err := writeAll(w, []byte(fmt.Sprintf(" %d %d ", offset, len(snippet)))); err != nil {
		return err
	}
	if err := writeAll(w, snippet); err != nil {
		return err
	}
	return writeAll(w, []byte("\n"))
}

// WriteDumpRecord writes one document record of a dump result stream:
// "LABEL_LEN LABEL DATA_LEN DATA\n".
func WriteDumpRecord(w io.Writer, label, data []byte) error {
	if err := writeAll(w, []byte(fmt.Sprintf("%d ", len(label)))); err != nil {
		return err
	}
	if err := writeAll(w, label); err != nil {
		return err
	}
	if err := writeAll(w, []byte(fmt.Sprintf(" %d ", len(data)))); err != nil {
		return err
	}
	if err := writeAll(w, data); err != nil {
		return err
	}
	return writeAll(w, []byte("\n"))
}

// WriteTerminator writes the "0\n" sentinel that ends a get/dump result
// stream.
func WriteTerminator(w io.Writer) error {
	return writeAll(w, []byte("0\n"))
}

func writeAll(w io.Writer, b []byte) error {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return errors.Wrap(err, "short write")
		}
	}
	return nil
}
