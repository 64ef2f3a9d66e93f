package xlrd

import (
	"errors"
	"io"
	"runtime"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const defaultSheetCacheSize = 16

// OpenWorkbookOptions contains options for opening a workbook.
type OpenWorkbookOptions struct {
	// Logfile is where messages and diagnostics are written, in logfmt.
	// Ignored when Logger is set.
	Logfile io.Writer

	// Verbosity increases the volume of trace material written to the logfile:
	// 0 warnings only, 1 adds info, 2 and above add debug.
	Verbosity int

	// Logger receives all log output when set.
	Logger log.Logger

	// FileContents is the file contents as bytes.
	// If FileContents is supplied, the filename is only used in messages.
	FileContents []byte

	// EncodingOverride is used to overcome missing or bad codepage information in older-version files.
	EncodingOverride string

	// FormattingInfo: The default is false, which saves memory.
	// When true, FORMAT and XF records are kept on the Book.
	FormattingInfo bool

	// OnDemand governs whether sheets are all loaded initially or when demanded by the caller.
	OnDemand bool

	// SheetCacheSize bounds how many on-demand sheets stay decoded. Defaults to 16.
	SheetCacheSize int

	// Concurrency bounds how many sheets decode at once. Defaults to GOMAXPROCS.
	Concurrency int

	// Strict makes recoverable decoding errors fatal.
	Strict bool

	// Metrics receives decoding counters when set.
	Metrics *Metrics
}

// Validate reports options that cannot be used.
func (o *OpenWorkbookOptions) Validate() error {
	var errs []error
	if o.SheetCacheSize < 0 {
		errs = append(errs, errors.New("sheet cache size must not be negative"))
	}
	if o.Concurrency < 0 {
		errs = append(errs, errors.New("concurrency must not be negative"))
	}
	if o.Verbosity < 0 {
		errs = append(errs, errors.New("verbosity must not be negative"))
	}
	if o.EncodingOverride != "" {
		if _, err := lookupEncoding(o.EncodingOverride); err != nil {
			errs = append(errs, NewXLRDError(ErrFormat, "unknown encoding override %q", o.EncodingOverride))
		}
	}
	return errors.Join(errs...)
}

// withDefaults returns a copy of o with zero values filled in.
func (o *OpenWorkbookOptions) withDefaults() OpenWorkbookOptions {
	var out OpenWorkbookOptions
	if o != nil {
		out = *o
	}
	if out.SheetCacheSize == 0 {
		out.SheetCacheSize = defaultSheetCacheSize
	}
	if out.Concurrency == 0 {
		out.Concurrency = runtime.GOMAXPROCS(0)
	}
	return out
}

func (o *OpenWorkbookOptions) logger() log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	if o.Logfile == nil {
		return log.NewNopLogger()
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(o.Logfile))
	switch {
	case o.Verbosity >= 2:
		logger = level.NewFilter(logger, level.AllowDebug())
	case o.Verbosity == 1:
		logger = level.NewFilter(logger, level.AllowInfo())
	default:
		logger = level.NewFilter(logger, level.AllowWarn())
	}
	return log.With(logger, "caller", log.DefaultCaller)
}
