// Command xls2csv converts legacy Excel .xls workbooks to CSV and inspects
// their container and record streams.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/urfave/cli/v2"

	"github.com/yamitzky/xlsreader/cfb"
	"github.com/yamitzky/xlsreader/xlrd"
)

const defaultSheetDelimiter = "--------"

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the app and maps its error to an exit code: 0 ok, 1 failure, 2 usage.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := newApp(stdin, stdout, stderr).Run(append([]string{"xls2csv"}, args...))
	if err == nil {
		return 0
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(stderr, msg)
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

func usageError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), 2)
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "xls2csv"
	app.Usage = "convert legacy Excel .xls workbooks to CSV"
	app.Version = version
	app.ArgsUsage = "xlsfile [outfile]"
	app.Description = `xlsfile may be '-' to read from STDIN. With a directory as xlsfile, every
.xls file in it is converted to a .csv file in outfile, or beside the input
when outfile is omitted.`
	app.Reader = stdin
	app.Writer = stdout
	app.ErrWriter = stderr
	app.HideHelpCommand = true
	app.Flags = convertFlags()
	app.Action = convertAction
	app.Commands = []*cli.Command{lsCommand(), dumpCommand()}
	app.OnUsageError = func(_ *cli.Context, err error, _ bool) error {
		return cli.Exit(err.Error(), 2)
	}
	// Exit codes are returned from run instead of exiting the process.
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func convertFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "export all sheets"},
		&cli.StringFlag{Name: "outputencoding", Aliases: []string{"c"}, Value: "utf-8", Usage: "encoding of output CSV"},
		&cli.IntFlag{Name: "sheet", Aliases: []string{"s"}, Value: -1, Usage: "sheet number to convert, 0 for all"},
		&cli.StringFlag{Name: "sheetname", Aliases: []string{"n"}, Usage: "sheet name to convert"},
		&cli.StringFlag{Name: "delimiter", Aliases: []string{"d"}, Value: ",",
			Usage: "column delimiter in CSV, 'tab' or 'x09' for a tab"},
		&cli.StringFlag{Name: "lineterminator", Aliases: []string{"l"},
			Usage: `line terminator in CSV, '\n' '\r\n' or '\r' (default: os line separator)`},
		&cli.StringFlag{Name: "dateformat", Aliases: []string{"f"}, Usage: "override date/time format (ex. %Y/%m/%d)"},
		&cli.StringFlag{Name: "floatformat", Usage: "override float format (ex. %.15f)"},
		&cli.BoolFlag{Name: "ignoreempty", Aliases: []string{"i"}, Usage: "skip empty lines"},
		&cli.BoolFlag{Name: "escape", Aliases: []string{"e"}, Usage: `escape \r\n\t characters`},
		&cli.StringFlag{Name: "sheetdelimiter", Aliases: []string{"p"}, Value: defaultSheetDelimiter,
			Usage: "sheet delimiter used to separate sheets, '' for none, 'x07' or '\\f' for form feed"},
		&cli.StringFlag{Name: "quoting", Aliases: []string{"q"}, Value: "minimal",
			Usage: "field quoting, 'none' 'minimal' 'nonnumeric' or 'all'"},
		&cli.StringSliceFlag{Name: "include_sheet_pattern", Aliases: []string{"I"},
			Usage: "only include sheets with names matching the pattern, with --all"},
		&cli.StringSliceFlag{Name: "exclude_sheet_pattern", Aliases: []string{"E"},
			Usage: "exclude sheets with names matching the pattern, with --all"},
		&cli.BoolFlag{Name: "merge-cells", Aliases: []string{"m"}, Usage: "fill merged ranges with their top-left value"},
		&cli.StringFlag{Name: "encoding", Usage: "byte string encoding for workbooks with a missing or wrong CODEPAGE"},
		&cli.BoolFlag{Name: "strict", Usage: "fail on the first recoverable decoding error"},
		&cli.IntFlag{Name: "verbosity", Usage: "log verbosity on stderr: 0 warnings, 1 info, 2 debug"},
	}
}

func newLogger(w io.Writer, verbosity int) log.Logger {
	allow := level.AllowWarn()
	switch {
	case verbosity >= 2:
		allow = level.AllowDebug()
	case verbosity == 1:
		allow = level.AllowInfo()
	}
	logger := level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(w)), allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}

// options is the parsed form of the convert flags.
type options struct {
	sheets    sheetSelection
	csv       csvFormat
	cells     cellFormat
	sheetSep  string
	skipEmpty bool
	merge     bool

	strict    bool
	encoding  string
	verbosity int
	logger    log.Logger
	stderr    io.Writer
}

func parseOptions(c *cli.Context) (options, error) {
	opts := options{
		sheets: sheetSelection{
			all:   c.Bool("all") || c.Int("sheet") == 0,
			index: c.Int("sheet"),
			name:  c.String("sheetname"),
		},
		cells: cellFormat{
			dateFormat:  c.String("dateformat"),
			floatFormat: c.String("floatformat"),
			escape:      c.Bool("escape"),
		},
		skipEmpty: c.Bool("ignoreempty"),
		merge:     c.Bool("merge-cells"),
		strict:    c.Bool("strict"),
		encoding:  c.String("encoding"),
		verbosity: c.Int("verbosity"),
		logger:    newLogger(c.App.ErrWriter, c.Int("verbosity")),
		stderr:    c.App.ErrWriter,
	}
	if opts.sheets.name != "" && (c.Bool("all") || c.Int("sheet") >= 0) {
		return opts, usageError("cannot combine --sheetname with --sheet or --all")
	}
	if enc := strings.ToLower(c.String("outputencoding")); enc != "utf-8" && enc != "utf8" {
		return opts, usageError("unsupported output encoding: %s", c.String("outputencoding"))
	}

	var err error
	if opts.csv.comma, err = parseDelimiter(c.String("delimiter")); err != nil {
		return opts, usageError("invalid delimiter: %v", err)
	}
	opts.csv.eol = "\n"
	if runtime.GOOS == "windows" {
		opts.csv.eol = "\r\n"
	}
	if v := c.String("lineterminator"); v != "" {
		if opts.csv.eol, err = unescape(v); err != nil {
			return opts, usageError("invalid line terminator: %v", err)
		}
	}
	if opts.sheetSep, err = unescape(c.String("sheetdelimiter")); err != nil {
		return opts, usageError("invalid sheet delimiter: %v", err)
	}
	mode, ok := quotingModes[strings.ToLower(c.String("quoting"))]
	if !ok {
		return opts, usageError("invalid quoting: %s", c.String("quoting"))
	}
	opts.csv.quoting = mode
	if opts.sheets.include, err = compilePatterns(c.StringSlice("include_sheet_pattern")); err != nil {
		return opts, usageError("invalid include pattern: %v", err)
	}
	if opts.sheets.exclude, err = compilePatterns(c.StringSlice("exclude_sheet_pattern")); err != nil {
		return opts, usageError("invalid exclude pattern: %v", err)
	}
	return opts, nil
}

var escapes = map[byte]byte{'n': '\n', 'r': '\r', 't': '\t', 'f': '\f', '\\': '\\'}

// unescape expands backslash escapes, and a whole value of the form xHH to
// that single byte.
func unescape(s string) (string, error) {
	if len(s) == 3 && s[0] == 'x' {
		if b, err := strconv.ParseUint(s[1:], 16, 8); err == nil {
			return string([]byte{byte(b)}), nil
		}
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			out = append(out, s[i])
			continue
		}
		if i++; i == len(s) {
			return "", errors.New("trailing backslash")
		}
		b, ok := escapes[s[i]]
		if !ok {
			return "", fmt.Errorf("unknown escape \\%c", s[i])
		}
		out = append(out, b)
	}
	return string(out), nil
}

func parseDelimiter(s string) (rune, error) {
	if strings.EqualFold(s, "tab") {
		return '\t', nil
	}
	u, err := unescape(s)
	if err != nil {
		return 0, err
	}
	if len(u) == 1 {
		return rune(u[0]), nil
	}
	if utf8.RuneCountInString(u) != 1 {
		return 0, fmt.Errorf("%q is not a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(u)
	return r, nil
}

func compilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "list the streams of the compound file and the sheets of its workbook",
		ArgsUsage: "xlsfile",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return usageError("ls takes exactly one xlsfile")
			}
			return listFile(c.Args().First(), c.App.Writer)
		},
	}
}

func listFile(path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cf, err := cfb.OpenBytes(data, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s, %d sectors of %d bytes\n", path, humanize.Bytes(uint64(len(data))),
		cf.NumSectors(), cf.SectorSize())
	for p, e := range cf.Walk() {
		if e.IsStorage() {
			fmt.Fprintf(w, "  %-8s %10s  %s/\n", e.Kind, "", printablePath(p))
			continue
		}
		fmt.Fprintf(w, "  %-8s %10s  %s\n", e.Kind, humanize.Bytes(uint64(e.Size)), printablePath(p))
	}

	bk, err := xlrd.OpenWorkbook(path, &xlrd.OpenWorkbookOptions{FileContents: data, OnDemand: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "workbook: %s, %s shared strings, datemode %d, encoding %s\n",
		xlrd.BiffTextFromNum(bk.BiffVersion), humanize.Comma(int64(len(bk.SharedStrings))), bk.Datemode, bk.Encoding)
	for i, bs := range bk.BoundSheets {
		fmt.Fprintf(w, "  %d %-8s %-11s %q\n", i, boundSheetKind(bs.Kind), visibilityName(bs.Visibility), bs.Name)
	}
	return nil
}

// printablePath replaces the control characters some stream names start with.
func printablePath(p string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 {
			return '?'
		}
		return r
	}, p)
}

func boundSheetKind(kind int) string {
	switch kind {
	case xlrd.XL_BOUNDSHEET_WORKSHEET:
		return "worksheet"
	case xlrd.XL_BOUNDSHEET_MACRO:
		return "macro"
	case xlrd.XL_BOUNDSHEET_CHART:
		return "chart"
	case xlrd.XL_BOUNDSHEET_VB_MODULE:
		return "vbmodule"
	}
	return fmt.Sprintf("kind(%d)", kind)
}

func visibilityName(v int) string {
	switch v {
	case 0:
		return "visible"
	case 1:
		return "hidden"
	case 2:
		return "very-hidden"
	}
	return strconv.Itoa(v)
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "print the BIFF records of the workbook stream",
		ArgsUsage: "xlsfile",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "unnumbered", Aliases: []string{"u"}, Usage: "omit offsets so dumps can be diffed"},
			&cli.BoolFlag{Name: "count", Usage: "print record counts instead of the records"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return usageError("dump takes exactly one xlsfile")
			}
			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			w := bufio.NewWriter(c.App.Writer)
			r := bytes.NewReader(data)
			if c.Bool("count") {
				err = xlrd.CountRecords(r, int64(len(data)), w)
			} else {
				err = xlrd.Dump(r, int64(len(data)), w, c.Bool("unnumbered"))
			}
			if err != nil {
				return err
			}
			return w.Flush()
		},
	}
}
