package runtime

import (
	"bufio"
	"io"
	"os"

	"pyvm/internal/runtime/builtins"
)

// Env aggregates host services used by builtins. Only output is needed
// today; more services can be added later.
// Env implements builtins.Env to avoid import cycles.
type Env struct {
	ioService builtins.IO
}

// IO returns the IO service. Implements builtins.Env interface.
func (e *Env) IO() builtins.IO {
	return e.ioService
}

// writerIO writes lines to w and flushes after each one, so output
// interleaves correctly with anything else writing to the same stream.
type writerIO struct {
	w *bufio.Writer
}

func newWriterIO(w io.Writer) *writerIO {
	return &writerIO{w: bufio.NewWriter(w)}
}

func (s *writerIO) Println(str string) error {
	if _, err := s.w.WriteString(str); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

// DefaultEnv returns an Env printing to stdout.
func DefaultEnv() *Env {
	return WriterEnv(os.Stdout)
}

// WriterEnv returns an Env printing to w.
func WriterEnv(w io.Writer) *Env {
	return &Env{ioService: newWriterIO(w)}
}

// NewEnv creates a new Env with the given IO service.
// This is useful for tests that need to provide a custom IO implementation.
func NewEnv(io builtins.IO) *Env {
	return &Env{ioService: io}
}
