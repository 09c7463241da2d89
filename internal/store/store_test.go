package store

import "testing"

func TestSaveAndLoadReplayGuard(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	guard := map[string]bool{
		replayGuardKey(1, 137): true,
		replayGuardKey(1, 1):   false,
	}
	if err := s.SaveReplayGuard(guard); err != nil {
		t.Fatalf("SaveReplayGuard: %v", err)
	}

	loaded, err := s.LoadReplayGuard()
	if err != nil {
		t.Fatalf("LoadReplayGuard: %v", err)
	}
	if !loaded[replayGuardKey(1, 137)] {
		t.Errorf("expected (1,137) settled")
	}
	if loaded[replayGuardKey(1, 1)] {
		t.Errorf("expected (1,1) not settled")
	}
}

func TestLoadReplayGuardMissingReturnsEmptyMap(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadReplayGuard()
	if err != nil {
		t.Fatalf("LoadReplayGuard: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty map, got %+v", loaded)
	}
}

func TestSaveAndLoadSettlementRecord(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	rec := SettlementRecordDTO{
		OrderID:       42,
		Status:        "pending",
		SourceSettled: true,
		Attempts:      2,
	}
	if err := s.SaveSettlementRecord(rec); err != nil {
		t.Fatalf("SaveSettlementRecord: %v", err)
	}

	loaded, err := s.LoadSettlementRecord(42)
	if err != nil {
		t.Fatalf("LoadSettlementRecord: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadSettlementRecord returned nil")
	}
	if loaded.Status != "pending" || !loaded.SourceSettled || loaded.Attempts != 2 {
		t.Errorf("loaded = %+v, want status=pending source_settled=true attempts=2", loaded)
	}
}

func TestLoadSettlementRecordMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadSettlementRecord(999)
	if err != nil {
		t.Fatalf("LoadSettlementRecord: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing record, got %+v", loaded)
	}
}

func TestListSettlementRecords(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_ = s.SaveSettlementRecord(SettlementRecordDTO{OrderID: 1, Status: "pending"})
	_ = s.SaveSettlementRecord(SettlementRecordDTO{OrderID: 2, Status: "settled"})
	_ = s.SaveReplayGuard(map[string]bool{replayGuardKey(1, 1): true})

	records, err := s.ListSettlementRecords()
	if err != nil {
		t.Fatalf("ListSettlementRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2 (replay_guard.json must be skipped)", len(records))
	}
}
