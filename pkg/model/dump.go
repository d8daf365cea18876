package model

// DumpFormat is the container format tag assigned by header detection.
type DumpFormat string

const (
	FormatMinidump    DumpFormat = "minidump"
	FormatFullDump    DumpFormat = "full_dump"
	FormatHibernation DumpFormat = "hibernation"
	FormatELFCore     DumpFormat = "elf_core"
	FormatMachOCore   DumpFormat = "macho_core"
	FormatUnknown     DumpFormat = "unknown"
)

// AllFormats lists every known format tag, unknown included.
func AllFormats() []DumpFormat {
	return []DumpFormat{
		FormatMinidump,
		FormatFullDump,
		FormatHibernation,
		FormatELFCore,
		FormatMachOCore,
		FormatUnknown,
	}
}

// AccessMode records how the dump bytes are being read.
type AccessMode string

const (
	AccessMmap     AccessMode = "mmap"
	AccessPread    AccessMode = "pread"
	AccessDegraded AccessMode = "degraded"
)

// HeaderInfo carries format-specific fixed header fields. Only the fields
// relevant to the detected format are populated.
type HeaderInfo struct {
	Signature    string
	Version      uint32
	StreamCount  uint32
	StreamRVA    uint32
	Checksum     uint32
	Timestamp    uint32
	Flags        uint32
	Architecture string
	Endianness   string
	DumpType     string
	PointerWidth int
	OSVersion    string
	ByteOrder    string
}

// Fields renders the header as an ordered map for the given format.
func (h HeaderInfo) Fields(format DumpFormat) *Map {
	m := NewMap()
	switch format {
	case FormatMinidump:
		m.Set("signature", Str(h.Signature)).
			Set("version", Int64(int64(h.Version))).
			Set("stream_count", Int64(int64(h.StreamCount))).
			Set("stream_rva", Int64(int64(h.StreamRVA))).
			Set("checksum", Int64(int64(h.Checksum))).
			Set("timestamp", Int64(int64(h.Timestamp))).
			Set("flags", Int64(int64(h.Flags)))
	case FormatFullDump:
		m.Set("signature", Str(h.Signature)).
			Set("dump_type", Str(h.DumpType)).
			Set("pointer_width", Int(h.PointerWidth))
		if h.OSVersion != "" {
			m.Set("os_version", Str(h.OSVersion))
		}
	case FormatELFCore:
		m.Set("architecture", Str(h.Architecture)).
			Set("endianness", Str(h.Endianness))
	case FormatMachOCore:
		m.Set("signature", Str(h.Signature)).
			Set("byte_order", Str(h.ByteOrder)).
			Set("architecture", Str(h.Architecture))
	case FormatHibernation:
		m.Set("signature", Str(h.Signature))
	}
	return m
}

// DumpMetadata describes the dump a run operates on. Modules receive it
// by value.
type DumpMetadata struct {
	FilePath   string
	FileName   string
	FileSize   int64
	Format     DumpFormat
	AccessMode AccessMode
	Header     HeaderInfo
}
