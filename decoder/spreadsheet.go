package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/xuri/excelize/v2"
)

// decodeSpreadsheet reads only the first sheet of an XLSX workbook.
func decodeSpreadsheet(ctx context.Context, data []byte, opts Options) (*Result, error) {
	xlsxFile, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, newDecodeError(ReasonUnreadableBinary, err)
	}
	defer func() {
		_ = xlsxFile.Close()
	}()

	sheetNames := xlsxFile.GetSheetList()
	if len(sheetNames) == 0 {
		return nil, newDecodeError(ReasonNoSheets, nil)
	}

	sheetName := sheetNames[0]
	rows, err := xlsxFile.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, newDecodeError(ReasonUnreadableBinary, fmt.Errorf("failed to read sheet %s: %w", sheetName, err))
	}

	start := -1
	for i, row := range rows {
		if !model.Record(row).IsBlank() {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, newDecodeError(ReasonNoHeader, errors.New("sheet "+sheetName+" is empty"))
	}

	header := model.NormalizeHeader(rows[start])
	c := newCollector(ctx, len(header), opts)
	for _, row := range rows[start+1:] {
		if err := c.add(row); err != nil {
			return nil, err
		}
	}
	return c.result(header), nil
}
