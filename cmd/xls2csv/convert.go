package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/urfave/cli/v2"

	"github.com/yamitzky/xlsreader/xlrd"
)

// sheetSelection is the sheet part of the convert flags. index is 1-based,
// with 0 meaning every sheet and -1 meaning unset.
type sheetSelection struct {
	all     bool
	index   int
	name    string
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func (s sheetSelection) allows(name string) bool {
	matches := func(re *regexp.Regexp) bool { return re.MatchString(name) }
	if len(s.include) > 0 && !slices.ContainsFunc(s.include, matches) {
		return false
	}
	return !slices.ContainsFunc(s.exclude, matches)
}

// pick returns the worksheet indexes to convert.
func (s sheetSelection) pick(names []string) ([]int, error) {
	switch {
	case s.name != "":
		if i := slices.Index(names, s.name); i >= 0 {
			return []int{i}, nil
		}
		return nil, fmt.Errorf("sheet %s not found", s.name)
	case s.all:
		var picked []int
		for i, name := range names {
			if s.allows(name) {
				picked = append(picked, i)
			}
		}
		if len(picked) == 0 {
			return nil, errors.New("no sheets matched selection")
		}
		return picked, nil
	case s.index > len(names):
		return nil, fmt.Errorf("sheet index %d out of range", s.index)
	case s.index > 0:
		return []int{s.index - 1}, nil
	case len(names) == 0:
		return nil, errors.New("no sheets found")
	}
	return []int{0}, nil
}

func convertAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return usageError("missing xlsfile argument; see --help")
	}
	opts, err := parseOptions(c)
	if err != nil {
		return err
	}
	cv := converter{opts: opts, stdout: c.App.Writer}

	in, out := c.Args().Get(0), c.Args().Get(1)
	if in == "-" {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		return cv.convert(c.Context, "-", data, out)
	}
	info, err := os.Stat(in)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return cv.convertDir(c.Context, in, out)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return cv.convert(c.Context, in, data, out)
}

type converter struct {
	opts   options
	stdout io.Writer
}

// convertDir converts every xls file directly inside dir to a same-named
// .csv file in outDir.
func (cv converter) convertDir(ctx context.Context, dir, outDir string) error {
	if outDir == "" {
		outDir = dir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	converted := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		in := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		if format, _ := xlrd.InspectFormat("", data); format != "xls" {
			level.Debug(cv.opts.logger).Log("msg", "skipping file", "path", in, "format", xlrd.FileFormatDescriptions[format])
			continue
		}
		if err := ensureDir(outDir); err != nil {
			return err
		}
		out := filepath.Join(outDir, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))+".csv")
		if err := cv.convert(ctx, in, data, out); err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
		converted++
	}
	if converted == 0 {
		return fmt.Errorf("no xls files found in %s", dir)
	}
	return nil
}

// convert writes the selected sheets of the workbook in data to out: stdout
// when out is empty, one file per sheet when out is a directory, otherwise
// the file out.
func (cv converter) convert(ctx context.Context, name string, data []byte, out string) error {
	start := time.Now()
	format, err := xlrd.InspectFormat("", data)
	if err != nil {
		return err
	}
	if format != "xls" {
		return fmt.Errorf("%s: %s; not supported", name, xlrd.FileFormatDescriptions[format])
	}
	book, err := xlrd.OpenBytes(ctx, data, &xlrd.OpenWorkbookOptions{
		FormattingInfo:   true,
		OnDemand:         true,
		Strict:           cv.opts.strict,
		EncodingOverride: cv.opts.encoding,
		Logfile:          cv.opts.stderr,
		Verbosity:        cv.opts.verbosity,
	})
	if err != nil {
		return err
	}
	if len(book.Errors) > 0 {
		level.Warn(cv.opts.logger).Log("msg", "globals converted with recoverable errors", "path", name, "err", errors.Join(book.Errors...))
	}
	picked, err := cv.opts.sheets.pick(book.SheetNames())
	if err != nil {
		return err
	}

	if cv.opts.sheets.index == 0 && out != "" {
		if err := ensureDir(out); err != nil {
			return fmt.Errorf("outfile must be a directory when -s 0 is given: %w", err)
		}
	}
	switch info, statErr := os.Stat(out); {
	case out == "":
		err = cv.write(cv.stdout, book, picked)
	case statErr == nil && info.IsDir():
		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		for _, i := range picked {
			path := filepath.Join(out, fmt.Sprintf("%s-%s.csv", base, sanitizeFilename(book.SheetNames()[i])))
			if err = cv.writeFile(path, book, []int{i}); err != nil {
				break
			}
		}
	default:
		err = cv.writeFile(out, book, picked)
	}
	if err != nil {
		return err
	}
	level.Info(cv.opts.logger).Log("msg", "converted", "path", name, "sheets", len(picked),
		"size", humanize.Bytes(uint64(len(data))), "elapsed", time.Since(start))
	return nil
}

func (cv converter) writeFile(path string, book *xlrd.Book, picked []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cv.write(f, book, picked); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (cv converter) write(w io.Writer, book *xlrd.Book, picked []int) error {
	bw := bufio.NewWriter(w)
	rw := &rowWriter{w: bw, format: cv.opts.csv}
	for n, i := range picked {
		if n > 0 && cv.opts.sheetSep != "" {
			bw.WriteString(cv.opts.sheetSep + cv.opts.csv.eol)
		}
		sheet, err := book.SheetByIndex(i)
		if err != nil {
			return err
		}
		if err := cv.writeSheet(rw, book, sheet); err != nil {
			return err
		}
		if err := sheet.Err(); err != nil {
			level.Warn(cv.opts.logger).Log("msg", "sheet converted with recoverable errors", "sheet", sheet.Name, "err", err)
		}
		// Each sheet is written once.
		if err := book.UnloadSheet(i); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeSheet writes a rectangle of NRows by NCols fields, padding absent
// cells with empty fields.
func (cv converter) writeSheet(rw *rowWriter, book *xlrd.Book, sheet *xlrd.Sheet) error {
	row := make([]field, sheet.NCols)
	for r := range sheet.NRows {
		empty := true
		for c := range row {
			cell := sheet.Cell(r, c)
			if cv.opts.merge {
				cell = sheet.Cell(sheet.MergedOrigin(r, c))
			}
			row[c] = cv.opts.cells.render(book, cell)
			empty = empty && row[c].text == ""
		}
		if empty && cv.opts.skipEmpty {
			continue
		}
		if err := rw.write(row); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(path, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name))
	if name == "" {
		return "sheet"
	}
	return name
}
