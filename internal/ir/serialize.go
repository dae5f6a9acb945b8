package ir

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion changes whenever the encoded instruction layout does.
const FormatVersion = 1

var magic = [4]byte{'P', 'Y', 'V', 'C'}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// codeFile is the encoded payload that follows the magic header.
type codeFile struct {
	Version int         `cbor:"1,keyasint"`
	Code    *CodeObject `cbor:"2,keyasint"`
}

// Marshal encodes a code object, including nested function bodies, as
// canonical CBOR. Equal code objects always encode to equal bytes.
func Marshal(code *CodeObject) ([]byte, error) {
	if code == nil {
		return nil, fmt.Errorf("ir: marshal nil code object")
	}
	return cborEncMode.Marshal(codeFile{Version: FormatVersion, Code: code})
}

// Unmarshal decodes and validates a code object produced by Marshal.
func Unmarshal(data []byte) (*CodeObject, error) {
	var f codeFile
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ir: unmarshal code: %w", err)
	}
	if f.Version != FormatVersion {
		return nil, fmt.Errorf("ir: unsupported code format version %d (want %d)", f.Version, FormatVersion)
	}
	if err := Validate(f.Code); err != nil {
		return nil, fmt.Errorf("ir: invalid code: %w", err)
	}
	return f.Code, nil
}

func WriteCodeToFile(filename string, code *CodeObject) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCode(f, code); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadCodeFromFile(filename string) (*CodeObject, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCode(f)
}

// WriteCode writes the magic header followed by the CBOR payload.
func WriteCode(w io.Writer, code *CodeObject) error {
	data, err := Marshal(code)
	if err != nil {
		return err
	}
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func ReadCode(r io.Reader) (*CodeObject, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if hdr != magic {
		return nil, fmt.Errorf("invalid magic header: %q", string(hdr[:]))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// IsCodeFile reports whether data starts with the code file header.
func IsCodeFile(data []byte) bool {
	return bytes.HasPrefix(data, magic[:])
}
