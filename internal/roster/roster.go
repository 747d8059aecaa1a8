package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Entry is one expected participant of a grading session.
type Entry struct {
	ID      string `json:"student_id"`
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
}

// Load reads a class list in CSV form. A header row is recognised by the
// presence of an id-like and a name-like column (id/student_id, name/
// student_name, optionally email/contact); headerless files are read as
// name,id rows, matching the legacy class-list layout.
func Load(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read class list: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("class list is empty")
	}

	idCol, nameCol, contactCol, hasHeader := detectHeader(records[0])
	rows := records
	if hasHeader {
		rows = records[1:]
	} else {
		// Legacy layout: Name, ID.
		nameCol, idCol, contactCol = 0, 1, -1
	}

	entries := make([]Entry, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		if idCol >= len(row) || nameCol >= len(row) {
			continue
		}
		entry := Entry{
			ID:   strings.TrimSpace(row[idCol]),
			Name: strings.TrimSpace(row[nameCol]),
		}
		if contactCol >= 0 && contactCol < len(row) {
			entry.Contact = strings.TrimSpace(row[contactCol])
		}
		if entry.ID == "" {
			continue
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate student id %q at row %d", entry.ID, i+1)
		}
		seen[entry.ID] = struct{}{}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("class list has no usable rows")
	}
	return entries, nil
}

// LoadFile opens and loads a class-list CSV from disk.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open class list: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func detectHeader(row []string) (idCol, nameCol, contactCol int, ok bool) {
	idCol, nameCol, contactCol = -1, -1, -1
	for i, cell := range row {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "id", "student_id", "studentid":
			idCol = i
		case "name", "student_name", "studentname":
			nameCol = i
		case "email", "contact":
			contactCol = i
		}
	}
	return idCol, nameCol, contactCol, idCol >= 0 && nameCol >= 0
}
