package xlrd

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Handler receives a workbook as it is decoded, without the book holding
// any sheet in memory. Returning an error stops the walk.
type Handler interface {
	OnSharedString(index int, s string) error
	OnDateMode(mode int) error
	OnSheet(index int, sheet BoundSheet) error
	OnCell(sheet int, c Cell) error
}

// Walk decodes the workbook in r and reports it to h: the shared strings
// and date mode first, then each worksheet followed by its cells.
// Recoverable errors are returned joined once the walk completes.
func Walk(ctx context.Context, r io.ReaderAt, size int64, options *OpenWorkbookOptions, h Handler) error {
	bk, err := openGlobals(ctx, r, size, options)
	if err != nil {
		return err
	}
	for i, s := range bk.SharedStrings {
		if err := h.OnSharedString(i, s); err != nil {
			return err
		}
	}
	if err := h.OnDateMode(bk.Datemode); err != nil {
		return err
	}

	errs := append([]error(nil), bk.Errors...)
	for i, bs := range bk.sheetInfo {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.OnSheet(i, bs); err != nil {
			return err
		}
		err := bk.scanSheet(ctx, bk.stream, i, func(d Decoded) error {
			if cr, ok := d.(CellRecord); ok {
				for _, c := range cr.Cells {
					if err := h.OnCell(i, c); err != nil {
						return err
					}
				}
			}
			return nil
		}, func(err error) error {
			if bk.opts.Strict {
				return err
			}
			bk.metrics.recordError(err)
			errs = append(errs, fmt.Errorf("sheet %q: %w", bs.Name, err))
			return nil
		})
		if err != nil {
			return err
		}
		bk.metrics.sheetDecoded()
	}
	return errors.Join(errs...)
}
