package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/abadealex/scriptmark/internal/identity"
)

var presenceHeader = []string{"student_id", "name", "status", "matched_by", "confidence"}

// WriteCSV writes the presence table for a session.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(presenceHeader); err != nil {
		return fmt.Errorf("write presence header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Entry.ID,
			r.Entry.Name,
			r.Status(),
			string(r.MatchedBy),
			strconv.FormatFloat(r.Confidence, 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write presence row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUnclaimedCSV writes segments that need manual reconciliation.
func WriteUnclaimedCSV(w io.Writer, unclaimed []Unclaimed) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"segment", "detected_id", "detected_name", "best_score", "ambiguous"}); err != nil {
		return fmt.Errorf("write unclaimed header: %w", err)
	}
	for _, u := range unclaimed {
		row := []string{
			strconv.Itoa(u.SegmentIndex),
			u.DetectedID,
			u.DetectedName,
			strconv.FormatFloat(u.BestScore, 'f', 3, 64),
			strconv.FormatBool(u.Ambiguous),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write unclaimed row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMatchesCSV writes the per-segment resolution table: what was detected
// on each front page and which roster entry, if any, claimed it.
func WriteMatchesCSV(w io.Writer, resolutions []identity.Resolution) error {
	cw := csv.NewWriter(w)
	header := []string{"segment", "detected_id", "detected_name", "matched_id", "matched_name", "method", "score"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write matches header: %w", err)
	}
	for _, res := range resolutions {
		matchedID, matchedName, method := "", "", ""
		score := res.BestScore
		if res.Resolved() {
			matchedID = res.Candidate.Entry.ID
			matchedName = res.Candidate.Entry.Name
			method = string(res.Candidate.Method)
			score = res.Candidate.Score
		}
		row := []string{
			strconv.Itoa(res.SegmentIndex),
			res.Extracted.ID,
			res.Extracted.Name,
			matchedID,
			matchedName,
			method,
			strconv.FormatFloat(score, 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write matches row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX saves the presence table as a spreadsheet for teachers who work
// from a workbook rather than raw CSVs.
func WriteXLSX(path, sheet string, records []Record) error {
	if sheet == "" {
		sheet = "Attendance"
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	for col, name := range presenceHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write header cell: %w", err)
		}
	}
	for i, r := range records {
		values := []interface{}{r.Entry.ID, r.Entry.Name, r.Status(), string(r.MatchedBy), r.Confidence}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", i, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
