package xlrd

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	data := minimalWorkbook().File("Workbook")

	var buf bytes.Buffer
	require.NoError(t, Dump(bytes.NewReader(data), int64(len(data)), &buf, false))
	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "    0: 0809 BOF len = 0010 (16)", lines[0])
	assert.Equal(t, "    4: 00 06 05 00 bb 0d cc 07 00 00 00 00 06 00 00 00  ~??~????~~~~?~~~", lines[1])
	assert.Contains(t, buf.String(), "SST len = ")
	assert.Contains(t, buf.String(), "alpha")

	buf.Reset()
	require.NoError(t, Dump(bytes.NewReader(data), int64(len(data)), &buf, true))
	lines = strings.Split(buf.String(), "\n")
	assert.Equal(t, "0809 BOF len = 0010 (16)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "     00 06 05 00"), lines[1])
}

func TestCountRecords(t *testing.T) {
	data := minimalWorkbook().File("Workbook")
	var buf bytes.Buffer
	require.NoError(t, CountRecords(bytes.NewReader(data), int64(len(data)), &buf))
	assert.Equal(t, strings.Join([]string{
		"       2 BOF",
		"       2 EOF",
		"       1 BLANK",
		"       1 BOUNDSHEET",
		"       1 LABELSST",
		"       1 NUMBER",
		"       1 SST",
		"",
	}, "\n"), buf.String())
}

func TestDumpNeedsWorkbookStream(t *testing.T) {
	data := minimalWorkbook().File("Other")
	err := CountRecords(bytes.NewReader(data), int64(len(data)), &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrWorkbookStreamMissing)
}

func TestHexCharDump(t *testing.T) {
	var buf bytes.Buffer
	data := []byte("0123456789abcdefXYZ\x00\x01")
	HexCharDump(data, 0, len(data), 0x100, &buf, false)
	assert.Equal(t,
		"  100: 30 31 32 33 34 35 36 37 38 39 61 62 63 64 65 66  0123456789abcdef\n"+
			"  110: 58 59 5a 00 01                                   XYZ~?\n",
		buf.String())
}

func zipBytes(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("<x/>"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestInspectFormat(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"xls", minimalWorkbook().File("Workbook"), "xls"},
		{"xlsx", zipBytes(t, "[Content_Types].xml", "xl/workbook.xml"), "xlsx"},
		{"xlsb", zipBytes(t, "xl/workbook.bin"), "xlsb"},
		{"xlsx with upper case names", zipBytes(t, "XL/Workbook.xml"), "xlsx"},
		{"ods", zipBytes(t, "mimetype", "content.xml"), "ods"},
		{"other zip", zipBytes(t, "readme.txt"), "zip"},
		{"short", []byte("PK"), ""},
		{"text", []byte("just some text"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InspectFormat("", tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, FileFormatDescriptions, got)
		})
	}

	path := filepath.Join(t.TempDir(), "book.xls")
	require.NoError(t, os.WriteFile(path, minimalWorkbook().File("Workbook"), 0o644))
	got, err := InspectFormat(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "xls", got)

	_, err = InspectFormat(filepath.Join(t.TempDir(), "missing.xls"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
