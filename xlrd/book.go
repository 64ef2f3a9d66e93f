package xlrd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yamitzky/xlsreader/cfb"
)

// cancelCheckInterval is how many records pass between context checks.
const cancelCheckInterval = 256

// workbookStreamNames are tried in order: BIFF8 names the stream Workbook,
// BIFF5/7 name it Book.
var workbookStreamNames = []string{"Workbook", "Book"}

// Book represents the contents of a "workbook".
//
// You should not instantiate this type yourself. You use the Book
// object that was returned when you called OpenWorkbook.
type Book struct {
	// NSheets is the number of worksheets present in the workbook file.
	// This information is available even when no sheets have yet been loaded.
	NSheets int

	// Datemode indicates which date system was in force when this file was last saved.
	// 0: 1900 system (the Excel for Windows default).
	// 1: 1904 system (the Excel for Macintosh default).
	// Defaults to 0 in case it's not specified in the file.
	Datemode int

	// BiffVersion is the version of BIFF used to create the file:
	// 80 for Excel 97 and later, 50 for Excel 5.0 and 95.
	BiffVersion int

	// Codepage is the CODEPAGE record value, or 0 if the file has none.
	// For BIFF 8 this is 1200, meaning UTF-16LE.
	Codepage int

	// Encoding is the name of the encoding used for byte strings.
	Encoding string

	// SharedStrings is the workbook's shared string table.
	SharedStrings []string

	// BoundSheets lists every substream the globals declare, including
	// charts and macro sheets.
	BoundSheets []BoundSheet

	// FormatMap is the mapping from XF.FormatKey to Format object.
	// Only filled when FormattingInfo is set.
	FormatMap map[int]*Format

	// XFList holds one XF per XF record. Only filled when FormattingInfo is set.
	XFList []*XF

	// Errors holds the recoverable errors met while decoding the globals.
	Errors []error

	sheetInfo []BoundSheet

	mu     sync.RWMutex
	loaded []*Sheet
	cache  *lru.Cache[int, *Sheet]
	stream io.ReaderAt
	size   int64

	base    Context
	opts    OpenWorkbookOptions
	logger  log.Logger
	metrics *Metrics
}

// OpenWorkbook opens a spreadsheet file for data extraction.
//
// filename: The path to the spreadsheet file to be opened.
// options: Optional parameters for opening the workbook.
//
// Returns: An instance of the Book class.
func OpenWorkbook(filename string, options *OpenWorkbookOptions) (*Book, error) {
	var content []byte
	if options != nil && options.FileContents != nil {
		content = options.FileContents
	} else {
		var err error
		if content, err = os.ReadFile(filename); err != nil {
			return nil, err
		}
	}
	if len(content) == 0 {
		return nil, NewXLRDError(ErrFormat, "%s: file size is 0 bytes", filename)
	}

	fileFormat, err := InspectFormat("", content)
	if err != nil {
		return nil, err
	}
	if fileFormat != "xls" {
		return nil, NewXLRDError(ErrFormat, "%s: %s; not supported", filename, FileFormatDescriptions[fileFormat])
	}
	return OpenBytes(context.Background(), content, options)
}

// OpenBytes opens a workbook held in memory.
func OpenBytes(ctx context.Context, data []byte, options *OpenWorkbookOptions) (*Book, error) {
	return Open(ctx, bytes.NewReader(data), int64(len(data)), options)
}

// Open reads the compound file in the first size bytes of r, decodes the
// workbook globals and, unless OnDemand is set, every worksheet.
func Open(ctx context.Context, r io.ReaderAt, size int64, options *OpenWorkbookOptions) (*Book, error) {
	start := time.Now()
	bk, err := openGlobals(ctx, r, size, options)
	if err != nil {
		return nil, err
	}
	if bk.opts.OnDemand {
		if bk.cache, err = lru.New[int, *Sheet](bk.opts.SheetCacheSize); err != nil {
			return nil, err
		}
	} else if err := bk.loadSheets(ctx); err != nil {
		return nil, err
	}

	bk.metrics.observeOpen(time.Since(start).Seconds())
	level.Info(bk.logger).Log("msg", "opened workbook", "biff", BiffTextFromNum(bk.BiffVersion),
		"sheets", bk.NSheets, "strings", len(bk.SharedStrings), "elapsed", time.Since(start))
	return bk, nil
}

// openGlobals locates the workbook stream and decodes its globals substream.
func openGlobals(ctx context.Context, r io.ReaderAt, size int64, options *OpenWorkbookOptions) (*Book, error) {
	if options != nil {
		if err := options.Validate(); err != nil {
			return nil, err
		}
	}
	opts := options.withDefaults()
	bk := &Book{
		opts:    opts,
		logger:  opts.logger(),
		metrics: opts.Metrics,
		base:    NewContext(),
	}
	if opts.EncodingOverride != "" {
		enc, _ := lookupEncoding(opts.EncodingOverride)
		bk.base = bk.base.withEncodingOverride(enc)
	}

	cf, err := cfb.Open(r, size, &cfb.Options{Logger: bk.logger})
	if err != nil {
		return nil, err
	}
	stream, err := workbookStream(cf)
	if err != nil {
		return nil, err
	}
	bk.stream = stream
	bk.size = stream.Size()

	if err := bk.parseGlobals(ctx); err != nil {
		return nil, err
	}
	bk.loaded = make([]*Sheet, len(bk.sheetInfo))
	return bk, nil
}

func workbookStream(cf *cfb.File) (*cfb.Stream, error) {
	for _, name := range workbookStreamNames {
		s, err := cf.Open(name)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, cfb.ErrNotFound) && !errors.Is(err, cfb.ErrNotAStream) {
			return nil, err
		}
	}
	return nil, NewXLRDError(ErrWorkbookStreamMissing, "can't find workbook in OLE2 compound document")
}

// tolerate records a recoverable error against sh, or the book when sh is
// nil. In strict mode it returns the error instead.
func (b *Book) tolerate(sh *Sheet, err error) error {
	if b.opts.Strict {
		return err
	}
	b.metrics.recordError(err)
	if sh != nil {
		level.Warn(b.logger).Log("msg", "recovered decoding error", "sheet", sh.Name, "err", err)
		sh.Errors = append(sh.Errors, err)
		return nil
	}
	level.Warn(b.logger).Log("msg", "recovered decoding error", "err", err)
	b.Errors = append(b.Errors, err)
	return nil
}

// parseGlobals decodes the workbook globals substream.
func (b *Book) parseGlobals(ctx context.Context) error {
	if b.opts.FormattingInfo {
		b.FormatMap = builtinFormatMap()
	}
	state := b.base
	rr := NewRecordReader(b.stream, b.size)
	n := 0
	for rec, err := range rr.All() {
		if err != nil {
			if err := b.tolerate(nil, err); err != nil {
				return err
			}
			break
		}
		if n++; n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		d, derr := Decode(state, rec)
		next, err := state.Advance(d)
		if err != nil {
			return err
		}
		if derr != nil {
			if err := b.tolerate(nil, derr); err != nil {
				return err
			}
		}
		b.metrics.record(substream(state, next, d))

		switch d := d.(type) {
		case FilePass:
			return NewXLRDError(ErrEncrypted, "workbook is encrypted")
		case BoundSheet:
			b.BoundSheets = append(b.BoundSheets, d)
			if d.Kind == XL_BOUNDSHEET_WORKSHEET {
				b.sheetInfo = append(b.sheetInfo, d)
			}
		case SST:
			b.SharedStrings = d.Strings
		case DateMode:
			b.Datemode = d.Mode
		case Codepage:
			b.Codepage = d.Codepage
		case Format:
			if b.opts.FormattingInfo {
				b.FormatMap[d.FormatKey] = &d
			}
		case XF:
			if b.opts.FormattingInfo {
				b.XFList = append(b.XFList, &d)
			}
		}

		state = next
		if state.Phase == AwaitingSheet {
			break
		}
	}

	switch state.Phase {
	case BeforeGlobals:
		return NewXLRDError(ErrFormat, "workbook stream is empty")
	case InGlobals:
		level.Warn(b.logger).Log("msg", "workbook globals have no EOF record")
	}

	b.BiffVersion = state.BIFF
	b.Encoding = b.encodingName(state)
	b.NSheets = len(b.sheetInfo)
	b.base = state.atSheet(-1)
	level.Debug(b.logger).Log("msg", "parsed globals", "biff", state.BIFF, "codepage", state.Codepage,
		"encoding", b.Encoding, "bound_sheets", len(b.BoundSheets))
	return nil
}

func (b *Book) encodingName(state Context) string {
	switch {
	case b.opts.EncodingOverride != "":
		return b.opts.EncodingOverride
	case state.BIFF >= 80:
		return "utf_16_le"
	case state.Codepage == 0:
		return "latin_1"
	}
	name, _ := deriveEncoding(state.Codepage)
	return name
}

// scanSheet decodes the substream of worksheet i in stream and passes each completed
// variant to visit. Recoverable errors go to onErr; a non-nil return from
// visit or onErr stops the scan.
func (b *Book) scanSheet(ctx context.Context, stream io.ReaderAt, i int, visit func(Decoded) error, onErr func(error) error) error {
	bs := b.sheetInfo[i]
	if bs.Offset >= b.size {
		return onErr(NewXLRDError(ErrSheetTableInconsistent,
			"sheet %q starts at %d, past the end of the %d byte stream", bs.Name, bs.Offset, b.size))
	}

	// A formula with a string result is held until its STRING record arrives.
	var pending *Cell
	flush := func() error {
		if pending == nil {
			return nil
		}
		c := *pending
		pending = nil
		if c.Formula.pending {
			c.Formula.pending = false
			if err := onErr(NewXLRDError(ErrFormat, "formula at %s has no STRING record", c.Addr())); err != nil {
				return err
			}
		}
		return visit(CellRecord{Cells: []Cell{c}})
	}

	state := b.base.atSheet(i)
	rr := NewRecordReader(stream, b.size)
	n := 0
	ended := false
	for rec, err := range rr.From(bs.Offset) {
		if err != nil {
			if err := onErr(err); err != nil {
				return err
			}
			ended = true
			break
		}
		if n++; n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		d, derr := Decode(state, rec)
		next, err := state.Advance(d)
		if err != nil {
			return onErr(fmt.Errorf("sheet %q: %w", bs.Name, err))
		}
		if derr != nil {
			if err := onErr(derr); err != nil {
				return err
			}
		}
		b.metrics.record(substream(state, next, d))

		nested := state.Depth > 0 || next.Depth > 0
		state = next
		if nested {
			continue
		}

		switch d := d.(type) {
		case CellRecord:
			if err := flush(); err != nil {
				return err
			}
			if len(d.Cells) == 1 && d.Cells[0].Kind == CellFormula && d.Cells[0].Formula.pending {
				c := d.Cells[0]
				pending = &c
				continue
			}
			if err := visit(d); err != nil {
				return err
			}
		case StringResult:
			if pending != nil {
				pending.Formula.Text = d.Text
				pending.Formula.pending = false
			}
			if err := flush(); err != nil {
				return err
			}
		case Opaque:
			switch d.Record.Code {
			case XL_SHRFMLA, XL_ARRAY, XL_TABLEOP:
			default:
				if err := flush(); err != nil {
					return err
				}
			}
		case Dimensions, MergedCells:
			if err := flush(); err != nil {
				return err
			}
			if err := visit(d); err != nil {
				return err
			}
		default:
			if err := flush(); err != nil {
				return err
			}
		}

		if state.Phase == Done {
			return nil
		}
	}

	if err := flush(); err != nil {
		return err
	}
	if !ended {
		return onErr(NewXLRDError(ErrTruncatedRecord, "sheet %q has no EOF record", bs.Name))
	}
	return nil
}

// decodeSheet builds worksheet i.
func (b *Book) decodeSheet(ctx context.Context, stream io.ReaderAt, i int) (*Sheet, error) {
	sh := newSheet(i, b.sheetInfo[i])
	err := b.scanSheet(ctx, stream, i, func(d Decoded) error {
		switch d := d.(type) {
		case CellRecord:
			for _, c := range d.Cells {
				sh.put(c)
			}
		case Dimensions:
			sh.Dimensions = &d
		case MergedCells:
			sh.MergedCells = append(sh.MergedCells, d.Ranges...)
		}
		return nil
	}, func(err error) error {
		return b.tolerate(sh, err)
	})
	if err != nil {
		return nil, err
	}
	b.metrics.sheetDecoded()
	level.Debug(b.logger).Log("msg", "decoded sheet", "sheet", sh.Name, "cells", sh.Len(),
		"rows", sh.NRows, "cols", sh.NCols)
	return sh, nil
}

// loadSheets decodes every worksheet, in parallel up to Concurrency.
func (b *Book) loadSheets(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	stream := b.stream
	for i := range b.sheetInfo {
		g.Go(func() error {
			sh, err := b.decodeSheet(gctx, stream, i)
			if err != nil {
				return fmt.Errorf("sheet %q: %w", b.sheetInfo[i].Name, err)
			}
			b.loaded[i] = sh
			return nil
		})
	}
	return g.Wait()
}

// Sheets returns a list of all sheets in the book.
// All sheets not already loaded will be loaded; sheets that fail to load are
// logged and left out.
func (b *Book) Sheets() []*Sheet {
	out := make([]*Sheet, 0, b.NSheets)
	for i := 0; i < b.NSheets; i++ {
		sh, err := b.SheetByIndex(i)
		if err != nil {
			level.Error(b.logger).Log("msg", "loading sheet", "index", i, "err", err)
			continue
		}
		out = append(out, sh)
	}
	return out
}

// SheetByIndex returns a sheet by its index.
func (b *Book) SheetByIndex(sheetx int) (*Sheet, error) {
	return b.LoadSheet(context.Background(), sheetx)
}

// LoadSheet returns worksheet sheetx, decoding it if it is not loaded.
func (b *Book) LoadSheet(ctx context.Context, sheetx int) (*Sheet, error) {
	if sheetx < 0 || sheetx >= b.NSheets {
		return nil, NewXLRDError(ErrSheetNotFound, "sheet index %d out of range", sheetx)
	}
	b.mu.RLock()
	sh := b.loaded[sheetx]
	stream := b.stream
	b.mu.RUnlock()
	if sh != nil {
		return sh, nil
	}
	if b.cache != nil {
		if sh, ok := b.cache.Get(sheetx); ok {
			return sh, nil
		}
	}
	if stream == nil {
		return nil, NewXLRDError(ErrSheetNotFound, "sheet %d is not loaded and resources were released", sheetx)
	}

	sh, err := b.decodeSheet(ctx, stream, sheetx)
	if err != nil {
		return nil, err
	}
	if b.cache != nil {
		b.cache.Add(sheetx, sh)
	} else {
		b.mu.Lock()
		b.loaded[sheetx] = sh
		b.mu.Unlock()
	}
	return sh, nil
}

// SheetByName returns a sheet by its name.
func (b *Book) SheetByName(sheetName string) (*Sheet, error) {
	for i, bs := range b.sheetInfo {
		if bs.Name == sheetName {
			return b.SheetByIndex(i)
		}
	}
	return nil, NewXLRDError(ErrSheetNotFound, "no sheet named <%s>", sheetName)
}

// SheetNames returns a list of all sheet names.
func (b *Book) SheetNames() []string {
	names := make([]string, len(b.sheetInfo))
	for i, bs := range b.sheetInfo {
		names[i] = bs.Name
	}
	return names
}

// Get returns a sheet by index or name.
func (b *Book) Get(key any) (*Sheet, error) {
	switch k := key.(type) {
	case int:
		return b.SheetByIndex(k)
	case string:
		return b.SheetByName(k)
	default:
		return nil, NewXLRDError(ErrSheetNotFound, "invalid key type %T for sheet access", key)
	}
}

func (b *Book) sheetIndex(key any) (int, error) {
	switch k := key.(type) {
	case int:
		if k < 0 || k >= b.NSheets {
			return 0, NewXLRDError(ErrSheetNotFound, "sheet index %d out of range", k)
		}
		return k, nil
	case string:
		for i, bs := range b.sheetInfo {
			if bs.Name == k {
				return i, nil
			}
		}
		return 0, NewXLRDError(ErrSheetNotFound, "no sheet named <%s>", k)
	}
	return 0, NewXLRDError(ErrSheetNotFound, "invalid key type %T for sheet access", key)
}

// SheetLoaded reports whether the sheet is decoded and held by the book.
func (b *Book) SheetLoaded(sheetNameOrIndex any) (bool, error) {
	i, err := b.sheetIndex(sheetNameOrIndex)
	if err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.loaded[i] != nil {
		return true, nil
	}
	return b.cache != nil && b.cache.Contains(i), nil
}

// UnloadSheet drops a decoded sheet; it is decoded again on next access.
func (b *Book) UnloadSheet(sheetNameOrIndex any) error {
	i, err := b.sheetIndex(sheetNameOrIndex)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.loaded[i] = nil
	b.mu.Unlock()
	if b.cache != nil {
		b.cache.Remove(i)
	}
	return nil
}

// ReleaseResources drops the book's reference to the workbook stream.
// Loaded sheets stay available; unloaded ones can no longer be decoded.
func (b *Book) ReleaseResources() {
	b.mu.Lock()
	b.stream = nil
	b.mu.Unlock()
}

// Err joins the recoverable errors of the globals and of every loaded sheet.
func (b *Book) Err() error {
	errs := append([]error(nil), b.Errors...)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i, sh := range b.loaded {
		if sh == nil && b.cache != nil {
			sh, _ = b.cache.Peek(i)
		}
		if sh != nil {
			errs = append(errs, sh.Errors...)
		}
	}
	return errors.Join(errs...)
}

// IsDateCell reports whether c holds a number formatted as a date. It
// needs FormattingInfo.
func (b *Book) IsDateCell(c Cell) bool {
	if c.Type() != XL_CELL_NUMBER || c.XFIndex < 0 || c.XFIndex >= len(b.XFList) {
		return false
	}
	f, ok := b.FormatMap[b.XFList[c.XFIndex].FormatKey]
	return ok && f.Type == FDT
}

// Datetime converts a numeric cell using the book's date mode.
func (b *Book) Datetime(c Cell) (time.Time, error) {
	v, ok := c.Value().(float64)
	if !ok {
		return time.Time{}, NewXLRDError(ErrFormat, "cell %s is %s, not a number", c.Addr(), c)
	}
	return XldateAsDatetime(v, b.Datemode)
}
