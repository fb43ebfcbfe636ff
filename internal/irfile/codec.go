package irfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrSchema reports an IR file written by an incompatible producer.
var ErrSchema = errors.New("irfile: unsupported schema")

// Encode writes f, stamping the current schema.
func Encode(w io.Writer, f *File) error {
	f.Schema = Schema
	enc := msgpack.NewEncoder(w)
	enc.SetOmitEmpty(true)
	return enc.Encode(f)
}

// Decode reads one file and checks its schema.
func Decode(r io.Reader) (*File, error) {
	var f File
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("irfile: %w", err)
	}
	if f.Schema != Schema {
		return nil, fmt.Errorf("%w %d (want %d)", ErrSchema, f.Schema, Schema)
	}
	return &f, nil
}

// Marshal is Encode into a byte slice.
func Marshal(f *File) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadFile decodes the file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// WriteFile encodes f to path.
func WriteFile(path string, f *File) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
