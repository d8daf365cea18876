// Package testutil builds dump fixtures for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// MinidumpTimestamp is the header timestamp of Minidump fixtures.
const MinidumpTimestamp = 1700000000

// Minidump returns a minidump with a valid 32-byte header (version 0xa793,
// 3 streams at rva 0x20), 64 zero bytes and body.
func Minidump(body string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("MDMP")
	for _, v := range []uint32{0xa793, 3, 0x20, 0, MinidumpTimestamp, 0} {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	buf.Write(make([]byte, 64))
	buf.WriteString(body)
	return buf.Bytes()
}

// ELFCore returns a little-endian 64-bit ELF core header followed by body.
func ELFCore(body string) []byte {
	header := make([]byte, 64)
	copy(header, "\x7fELF")
	header[4] = 2 // ELFCLASS64
	header[5] = 1 // ELFDATA2LSB
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:], 4) // ET_CORE
	return append(header, body...)
}

// FullDump returns a 64-bit full kernel dump header padded to 0x100 bytes,
// followed by body.
func FullDump(body string) []byte {
	header := make([]byte, 0x100)
	copy(header, "PAGEDU64")
	return append(header, body...)
}

// WriteFile writes data to dir/name, creating parent directories, and
// returns the path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

// WriteMinidump writes Minidump(body) to dir/name.
func WriteMinidump(t *testing.T, dir, name, body string) string {
	t.Helper()
	return WriteFile(t, dir, name, Minidump(body))
}

// ReadFile reads a file and returns its contents.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return data
}
