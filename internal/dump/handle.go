package dump

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/utils"
)

// ParserModule is the module name setup problems are reported under.
const ParserModule = "parser"

// OpenOptions controls how a dump is opened.
type OpenOptions struct {
	MaxFileSize   int64 // 0 disables the limit
	UseMmap       bool
	MmapThreshold int64
	RecoveryMode  bool
	Logger        utils.Logger
}

// Handle owns the open dump of one run: its accessor and detected metadata.
type Handle struct {
	accessor Accessor
	meta     model.DumpMetadata
	warnings []string
	setupErr error

	closeOnce sync.Once
	closeErr  error
}

// Open stats, opens and identifies the dump at path.
//
// A file larger than MaxFileSize is always rejected with an AccessError.
// Other access failures are returned unless RecoveryMode is set, in which
// case the handle is backed by an empty accessor and SetupError reports
// the cause. A malformed header never fails: the format falls back to
// unknown and the problem is listed in Warnings.
func Open(path string, opts OpenOptions) (*Handle, error) {
	log := utils.OrNull(opts.Logger).WithField("dump", filepath.Base(path))

	h := &Handle{
		meta: model.DumpMetadata{
			FilePath: path,
			FileName: filepath.Base(path),
			Format:   model.FormatUnknown,
		},
	}

	info, err := os.Stat(path)
	if err != nil {
		return h.degrade(apperrors.Access("cannot stat dump", err), opts.RecoveryMode, log)
	}
	if info.IsDir() {
		return h.degrade(apperrors.Access(fmt.Sprintf("%s is a directory", path), nil), opts.RecoveryMode, log)
	}
	h.meta.FileSize = info.Size()

	if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
		return nil, apperrors.Wrap(apperrors.CodeAccess,
			fmt.Sprintf("dump is %d bytes, limit is %d", info.Size(), opts.MaxFileSize), apperrors.ErrFileTooLarge)
	}

	f, err := os.Open(path)
	if err != nil {
		return h.degrade(apperrors.Access("cannot open dump", err), opts.RecoveryMode, log)
	}

	h.accessor = newSharedAccessor(newAccessor(f, info.Size(), opts, log))
	h.meta.AccessMode = h.accessor.Mode()
	h.identify(log)

	log.Debug("opened dump: %d bytes, format %s, access %s", h.meta.FileSize, h.meta.Format, h.meta.AccessMode)
	return h, nil
}

// OpenBytes wraps an in-memory buffer, mostly for tests and tooling.
func OpenBytes(name string, data []byte) *Handle {
	h := &Handle{
		accessor: newSharedAccessor(NewBytesAccessor(data)),
		meta: model.DumpMetadata{
			FilePath: name,
			FileName: filepath.Base(name),
			FileSize: int64(len(data)),
			Format:   model.FormatUnknown,
		},
	}
	h.meta.AccessMode = h.accessor.Mode()
	h.identify(&utils.NullLogger{})
	return h
}

func newAccessor(f *os.File, size int64, opts OpenOptions, log utils.Logger) Accessor {
	if opts.UseMmap && mmapSupported && size > opts.MmapThreshold {
		data, err := mapFile(f, size)
		if err == nil {
			log.Info("using memory-mapped access")
			return &mmapAccessor{data: data, file: f}
		}
		log.Warn("memory mapping failed, using positional reads: %v", err)
	}
	return newFileAccessor(f, size)
}

func (h *Handle) identify(log utils.Logger) {
	header := h.accessor.Read(0, HeaderWindow)
	format := Detect(header)
	if format == model.FormatUnknown {
		log.Warn("unknown dump format")
		return
	}

	hdr, err := ParseHeader(format, header)
	if err != nil {
		msg := fmt.Sprintf("%s header unreadable, treating as unknown: %s", format, apperrors.GetErrorMessage(err))
		log.Warn("%s", msg)
		h.warnings = append(h.warnings, msg)
		return
	}
	h.meta.Format = format
	h.meta.Header = hdr
}

func (h *Handle) degrade(err error, recovery bool, log utils.Logger) (*Handle, error) {
	if !recovery {
		return nil, err
	}
	log.Warn("recovery mode: continuing without dump access: %v", err)
	h.accessor = newSharedAccessor(emptyAccessor())
	h.meta.AccessMode = model.AccessDegraded
	h.setupErr = err
	return h, nil
}

// Accessor returns the read interface shared by all modules of the run.
func (h *Handle) Accessor() Accessor { return h.accessor }

// Metadata returns the dump metadata.
func (h *Handle) Metadata() model.DumpMetadata { return h.meta }

// Warnings returns recoverable setup problems.
func (h *Handle) Warnings() []string { return append([]string(nil), h.warnings...) }

// SetupError is the access failure absorbed in recovery mode, if any.
func (h *Handle) SetupError() error { return h.setupErr }

// Read reads from the underlying accessor.
func (h *Handle) Read(offset int64, size int) []byte { return h.accessor.Read(offset, size) }

// Close releases the mapping and descriptor. It is safe to call repeatedly.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if h.accessor != nil {
			h.closeErr = h.accessor.Close()
		}
	})
	return h.closeErr
}
