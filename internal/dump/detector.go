// Package dump detects dump container formats and provides random access
// to dump bytes.
package dump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
)

// HeaderWindow is the number of leading bytes inspected for detection.
const HeaderWindow = 4096

const (
	minidumpHeaderSize = 32
	elfMinHeaderSize   = 52
)

type signature struct {
	magic  []byte
	format model.DumpFormat
}

// signatures are matched in order; the first prefix match wins.
var signatures = []signature{
	{[]byte("MDMP"), model.FormatMinidump},
	{[]byte("PAGEDU64"), model.FormatFullDump},
	{[]byte("PAGEDUMP"), model.FormatFullDump},
	{[]byte("HIBR"), model.FormatHibernation},
	{[]byte("\x7fELF"), model.FormatELFCore},
	{[]byte{0xfe, 0xed, 0xfa, 0xce}, model.FormatMachOCore},
	{[]byte{0xce, 0xfa, 0xed, 0xfe}, model.FormatMachOCore},
	{[]byte{0xfe, 0xed, 0xfa, 0xcf}, model.FormatMachOCore},
	{[]byte{0xcf, 0xfa, 0xed, 0xfe}, model.FormatMachOCore},
}

// Detect returns the format of the first signature that prefixes header,
// or FormatUnknown.
func Detect(header []byte) model.DumpFormat {
	for _, sig := range signatures {
		if bytes.HasPrefix(header, sig.magic) {
			return sig.format
		}
	}
	return model.FormatUnknown
}

// ParseHeader extracts the fixed header fields of format from header.
// Malformed minidump and ELF headers return a StructuralError.
func ParseHeader(format model.DumpFormat, header []byte) (model.HeaderInfo, error) {
	switch format {
	case model.FormatMinidump:
		return parseMinidump(header)
	case model.FormatFullDump:
		return parseFullDump(header), nil
	case model.FormatELFCore:
		return parseELF(header)
	case model.FormatMachOCore:
		return parseMachO(header), nil
	case model.FormatHibernation:
		return model.HeaderInfo{Signature: "HIBR"}, nil
	}
	return model.HeaderInfo{}, nil
}

func parseMinidump(header []byte) (model.HeaderInfo, error) {
	if len(header) < minidumpHeaderSize {
		return model.HeaderInfo{}, apperrors.Structural(
			fmt.Sprintf("minidump header needs %d bytes, got %d", minidumpHeaderSize, len(header)), nil)
	}
	le := binary.LittleEndian
	return model.HeaderInfo{
		Signature:   string(header[0:4]),
		Version:     le.Uint32(header[4:8]),
		StreamCount: le.Uint32(header[8:12]),
		StreamRVA:   le.Uint32(header[12:16]),
		Checksum:    le.Uint32(header[16:20]),
		Timestamp:   le.Uint32(header[20:24]),
		Flags:       le.Uint32(header[24:28]),
	}, nil
}

// parseFullDump is a text search only; it never fails.
func parseFullDump(header []byte) model.HeaderInfo {
	info := model.HeaderInfo{
		Signature:    "PAGEDUMP",
		DumpType:     "windows_full",
		PointerWidth: 32,
	}
	if bytes.HasPrefix(header, []byte("PAGEDU64")) {
		info.Signature = "PAGEDU64"
		info.PointerWidth = 64
	}

	start := bytes.Index(header, []byte("Windows"))
	if start < 0 {
		return info
	}
	end := bytes.IndexByte(header[start:], 0)
	if end > 0 {
		info.OSVersion = strings.ToValidUTF8(string(header[start:start+end]), "")
	}
	return info
}

func parseELF(header []byte) (model.HeaderInfo, error) {
	if len(header) < elfMinHeaderSize {
		return model.HeaderInfo{}, apperrors.Structural(
			fmt.Sprintf("ELF header needs %d bytes, got %d", elfMinHeaderSize, len(header)), nil)
	}
	if !bytes.Equal(header[:4], []byte("\x7fELF")) {
		return model.HeaderInfo{}, apperrors.Structural("invalid ELF magic", nil)
	}

	info := model.HeaderInfo{Architecture: "32-bit", Endianness: "big"}
	if header[4] == 2 {
		info.Architecture = "64-bit"
	}
	if header[5] == 1 {
		info.Endianness = "little"
	}
	return info, nil
}

func parseMachO(header []byte) model.HeaderInfo {
	if len(header) < 4 {
		return model.HeaderInfo{}
	}
	info := model.HeaderInfo{Signature: fmt.Sprintf("%x", header[:4])}
	switch header[0] {
	case 0xfe:
		info.ByteOrder = "big"
	default:
		info.ByteOrder = "little"
	}
	if header[0] == 0xcf || header[3] == 0xcf {
		info.Architecture = "64-bit"
	} else {
		info.Architecture = "32-bit"
	}
	return info
}
