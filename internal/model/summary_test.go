package model

import "testing"

func TestRunSummary_Add(t *testing.T) {
	var s RunSummary
	s.Add(FileOutcome{Status: FileOK, Stats: FileStats{RecordsEmitted: 4}, RecordsWritten: 3})
	s.Add(FileOutcome{Status: FileSkipped, Reason: ReasonSchemaUnknown})
	if s.PartialFailure() {
		t.Error("no failure yet")
	}
	s.Add(FileOutcome{Status: FileBudgetExceeded, Stats: FileStats{RecordsEmitted: 2}})
	if s.FilesOK != 1 || s.FilesSkipped != 1 || s.FilesFailed != 1 {
		t.Errorf("counts = %d/%d/%d", s.FilesOK, s.FilesSkipped, s.FilesFailed)
	}
	if s.RecordsEmitted != 6 || s.RecordsWritten != 3 {
		t.Errorf("records = %d/%d", s.RecordsEmitted, s.RecordsWritten)
	}
	if !s.PartialFailure() {
		t.Error("expected partial failure")
	}
}

func TestCodeTypeByName(t *testing.T) {
	for _, name := range []string{"ms-drg", " MSDRG ", "MS_DRG"} {
		ct, ok := CodeTypeByName(name)
		if !ok || ct.Name != "MS-DRG" {
			t.Errorf("%q: got %v, %v", name, ct, ok)
		}
	}
	if _, ok := CodeTypeByName("bogus"); ok {
		t.Error("bogus code type accepted")
	}
}
