package attendance

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/abadealex/scriptmark/internal/identity"
	"github.com/abadealex/scriptmark/internal/roster"
)

var testRoster = []roster.Entry{
	{ID: "S001", Name: "Alice Johnson"},
	{ID: "S002", Name: "Bob Stone"},
	{ID: "S003", Name: "Carol Jones"},
}

func testResolutions() []identity.Resolution {
	return []identity.Resolution{
		{
			SegmentIndex: 0,
			Extracted:    identity.Extracted{ID: "S001", Name: "Alice Johnson"},
			Candidate: identity.Candidate{
				Entry:  testRoster[0],
				Score:  1.0,
				Method: identity.MethodIDExact,
			},
		},
		{
			SegmentIndex: 1,
			Extracted:    identity.Extracted{ID: "SX99", Name: "Dora Unknown"},
			BestScore:    0.41,
		},
		{
			SegmentIndex: 2,
			Extracted:    identity.Extracted{ID: "S00Z", Name: "Bob Stone"},
			Candidate: identity.Candidate{
				Entry:  testRoster[1],
				Score:  0.92,
				Method: identity.MethodNameFuzzy,
			},
		},
	}
}

func TestReconcile(t *testing.T) {
	records, unclaimed := Reconcile(testRoster, testResolutions())
	require.Len(t, records, 3)

	assert.True(t, records[0].Present)
	assert.Equal(t, 0, records[0].SegmentIndex)
	assert.Equal(t, identity.MethodIDExact, records[0].MatchedBy)

	assert.True(t, records[1].Present)
	assert.Equal(t, 2, records[1].SegmentIndex)
	assert.Equal(t, "Bob Stone", records[1].DetectedName)

	assert.False(t, records[2].Present)
	assert.Equal(t, -1, records[2].SegmentIndex)
	assert.Equal(t, StatusAbsent, records[2].Status())

	require.Len(t, unclaimed, 1)
	assert.Equal(t, 1, unclaimed[0].SegmentIndex)
	assert.Equal(t, "SX99", unclaimed[0].DetectedID)
	assert.Equal(t, 0.41, unclaimed[0].BestScore)
}

func TestReconcileIdempotent(t *testing.T) {
	r1, u1 := Reconcile(testRoster, testResolutions())
	r2, u2 := Reconcile(testRoster, testResolutions())
	assert.Equal(t, r1, r2)
	assert.Equal(t, u1, u2)
}

func TestReconcileEmptyResolutions(t *testing.T) {
	records, unclaimed := Reconcile(testRoster, nil)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.False(t, r.Present)
	}
	assert.Empty(t, unclaimed)
}

func TestWriteCSV(t *testing.T) {
	records, _ := Reconcile(testRoster, testResolutions())

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	out := buf.String()
	assert.Contains(t, out, "student_id,name,status,matched_by,confidence")
	assert.Contains(t, out, "S001,Alice Johnson,Present,id-exact,1.000")
	assert.Contains(t, out, "S003,Carol Jones,Absent,,0.000")
}

func TestWriteUnclaimedCSV(t *testing.T) {
	_, unclaimed := Reconcile(testRoster, testResolutions())

	var buf bytes.Buffer
	require.NoError(t, WriteUnclaimedCSV(&buf, unclaimed))
	assert.Contains(t, buf.String(), "1,SX99,Dora Unknown,0.410,false")
}

func TestWriteMatchesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatchesCSV(&buf, testResolutions()))

	out := buf.String()
	assert.Contains(t, out, "segment,detected_id,detected_name,matched_id,matched_name,method,score")
	assert.Contains(t, out, "0,S001,Alice Johnson,S001,Alice Johnson,id-exact,1.000")
	assert.Contains(t, out, "1,SX99,Dora Unknown,,,,0.410")
	assert.Contains(t, out, "2,S00Z,Bob Stone,S002,Bob Stone,name-fuzzy,0.920")
}

func TestWriteXLSX(t *testing.T) {
	records, _ := Reconcile(testRoster, testResolutions())
	path := filepath.Join(t.TempDir(), "presence.xlsx")

	require.NoError(t, WriteXLSX(path, "Attendance", records))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("Attendance", "A2")
	require.NoError(t, err)
	assert.Equal(t, "S001", got)

	status, err := f.GetCellValue("Attendance", "C4")
	require.NoError(t, err)
	assert.Equal(t, "Absent", status)
}
