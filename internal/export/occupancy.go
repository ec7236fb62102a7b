package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/casastay/homestay/pkg/booking"
)

const sheetName = "Occupancy"

// OccupancyWorkbook renders a homestay's calendar as an xlsx workbook: one
// row per date, one column pair (status, price) per unit.
func OccupancyWorkbook(homestayName string, units []booking.Unit, span booking.DateRange, perUnit map[booking.UnitID][]booking.DayInfo) ([]byte, error) {
	file := excelize.NewFile()
	index, err := file.NewSheet(sheetName)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	_ = file.DeleteSheet("Sheet1")
	file.SetActiveSheet(index)

	if err := file.SetCellValue(sheetName, "A1", homestayName); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("write title: %w", err)
	}
	headers := []string{"Date"}
	for _, unit := range units {
		headers = append(headers, unit.Name+" status", unit.Name+" price")
	}
	for column, header := range headers {
		cell, err := excelize.CoordinatesToCellName(column+1, 2)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := file.SetCellValue(sheetName, cell, header); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	byDate := indexDays(perUnit)
	for rowOffset, date := range span.Dates() {
		row := rowOffset + 3
		if err := file.SetCellValue(sheetName, "A"+strconv.Itoa(row), date.String()); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write date: %w", err)
		}
		for unitIndex, unit := range units {
			day, ok := byDate[unit.ID][date.String()]
			if !ok {
				day = booking.DayInfo{Date: date, Status: booking.DayNotSet}
			}
			statusCell, err := excelize.CoordinatesToCellName(2+unitIndex*2, row)
			if err != nil {
				_ = file.Close()
				return nil, fmt.Errorf("status cell: %w", err)
			}
			if err := file.SetCellValue(sheetName, statusCell, string(day.Status)); err != nil {
				_ = file.Close()
				return nil, fmt.Errorf("write status: %w", err)
			}
			if day.Price != nil {
				priceCell, err := excelize.CoordinatesToCellName(3+unitIndex*2, row)
				if err != nil {
					_ = file.Close()
					return nil, fmt.Errorf("price cell: %w", err)
				}
				if err := file.SetCellValue(sheetName, priceCell, day.Price.Int64()); err != nil {
					_ = file.Close()
					return nil, fmt.Errorf("write price: %w", err)
				}
			}
		}
	}

	buffer, err := file.WriteToBuffer()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buffer.Bytes(), nil
}

func indexDays(perUnit map[booking.UnitID][]booking.DayInfo) map[booking.UnitID]map[string]booking.DayInfo {
	indexed := make(map[booking.UnitID]map[string]booking.DayInfo, len(perUnit))
	for unitID, days := range perUnit {
		byDate := make(map[string]booking.DayInfo, len(days))
		for _, day := range days {
			byDate[day.Date.String()] = day
		}
		indexed[unitID] = byDate
	}
	return indexed
}
