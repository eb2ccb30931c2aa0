// Package export renders a completed job's full result set to an XLSX
// workbook by draining the preview pages.
package export

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/addresskit/addresskit/pager"
)

const sheetName = "Results"

// Service produces XLSX bytes from paged results.
type Service struct {
	gw       pager.Previewer
	pageSize int
}

func NewService(gw pager.Previewer, pageSize int) *Service {
	return &Service{gw: gw, pageSize: pageSize}
}

// ResultsXLSX pages through an output file from the start and returns a
// workbook with the frozen column set as a bold header row.
func (s *Service) ResultsXLSX(ctx context.Context, outputRef string) ([]byte, error) {
	start := time.Now()

	p := pager.New(s.gw, outputRef, s.pageSize)

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	var columns []string
	rowIdx := 2
	total := 0

	for pageNum := 1; ; pageNum++ {
		page, err := p.LoadPage(ctx, pageNum)
		if err != nil {
			return nil, fmt.Errorf("load page %d: %w", pageNum, err)
		}

		if columns == nil {
			columns = page.Columns
			style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
			if err != nil {
				return nil, err
			}
			for i, col := range columns {
				cell, _ := excelize.CoordinatesToCellName(i+1, 1)
				if err := f.SetCellValue(sheetName, cell, col); err != nil {
					return nil, err
				}
				if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
					return nil, err
				}
			}
		}

		for _, row := range page.Rows {
			for i, col := range columns {
				cell, _ := excelize.CoordinatesToCellName(i+1, rowIdx)
				if v, ok := row[col]; ok && v != nil {
					if err := f.SetCellValue(sheetName, cell, fmt.Sprint(v)); err != nil {
						return nil, err
					}
				}
			}
			rowIdx++
		}
		total += len(page.Rows)

		if page.IsLastPage {
			break
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	log.Printf("[Export] %s — %d rows in %s", outputRef, total, time.Since(start).Round(time.Millisecond))
	return buf.Bytes(), nil
}
