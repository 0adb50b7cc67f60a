package output

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"
)

// Output defines where the processed logs go.
type Output interface {
	WriteBatch(entries [][]byte) error
}

// ConsoleOutput writes one record per line to a writer (stdout by default).
type ConsoleOutput struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewConsoleOutput() *ConsoleOutput {
	return NewWriterOutput(os.Stdout)
}

// NewWriterOutput writes records to w.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: bufio.NewWriter(w)}
}

func (c *ConsoleOutput) WriteBatch(entries [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		if _, err := c.w.Write(entry); err != nil {
			return err
		}
		// TCP records keep their newline, UDP datagrams usually do not.
		if !bytes.HasSuffix(entry, []byte("\n")) {
			if err := c.w.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	return c.w.Flush()
}
