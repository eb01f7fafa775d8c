package memstore

import (
	"strings"
	"testing"
)

func TestScannerAcrossMaps(t *testing.T) {
	ms := New()
	ms.Upsert(cellKey("r2", "cf:a", 100), liveSlot("frozen-row"))
	snap := ms.Snapshot()
	ms.Upsert(cellKey("r4", "cf:a", 100), liveSlot("active-row"))

	sc := ms.NewScanner(MaxVersion, nil, nil, nil)
	defer sc.Close()

	row, ok := sc.Next()
	if !ok || string(row.Row) != "r2" {
		t.Fatalf("expected r2 first, got %q ok=%v", row.Row, ok)
	}
	if string(row.Columns["cf:a"].Value) != "frozen-row" {
		t.Fatalf("unexpected r2 columns: %v", row.Columns)
	}

	row, ok = sc.Next()
	if !ok || string(row.Row) != "r4" {
		t.Fatalf("expected r4 second, got %q ok=%v", row.Row, ok)
	}

	if _, ok := sc.Next(); ok {
		t.Fatal("expected exhaustion after r4")
	}
	if err := ms.Release(snap); err != nil {
		t.Fatalf("release failed: %v", err)
	}
}

func TestScannerStartRowExclusive(t *testing.T) {
	ms := New()
	ms.Upsert(cellKey("r1", "cf:a", 100), liveSlot("v"))
	ms.Upsert(cellKey("r2", "cf:a", 100), liveSlot("v"))

	sc := ms.NewScanner(MaxVersion, nil, []byte("r1"), nil)
	defer sc.Close()

	row, ok := sc.Next()
	if !ok || string(row.Row) != "r2" {
		t.Fatalf("expected scan to start after r1, got %q ok=%v", row.Row, ok)
	}
}

// Rows whose only columns are masked by tombstones are skipped, not emitted
// empty.
func TestScannerSkipsFullyMaskedRows(t *testing.T) {
	ms := New()
	ms.Upsert(cellKey("r1", "cf:a", 100), liveSlot("v"))
	ms.Upsert(cellKey("r2", "cf:a", 100), liveSlot("v"))
	ms.Upsert(cellKey("r2", "cf:a", 200), tombSlot())
	ms.Upsert(cellKey("r3", "cf:a", 100), liveSlot("v"))

	sc := ms.NewScanner(MaxVersion, nil, nil, nil)
	defer sc.Close()

	var rows []string
	for {
		row, ok := sc.Next()
		if !ok {
			break
		}
		rows = append(rows, string(row.Row))
	}
	if got := strings.Join(rows, ","); got != "r1,r3" {
		t.Fatalf("expected r1,r3 with r2 masked, got %s", got)
	}
}

func TestScannerExplicitColumns(t *testing.T) {
	ms := New()
	ms.Upsert(cellKey("r1", "cf:a", 100), liveSlot("A"))
	ms.Upsert(cellKey("r1", "cf:b", 100), liveSlot("B"))

	sc := ms.NewScanner(MaxVersion, [][]byte{[]byte("cf:b")}, nil, nil)
	defer sc.Close()

	row, ok := sc.Next()
	if !ok {
		t.Fatal("expected one row")
	}
	if len(row.Columns) != 1 || string(row.Columns["cf:b"].Value) != "B" {
		t.Fatalf("expected only cf:b, got %v", row.Columns)
	}
}

func TestScannerWildcardPredicate(t *testing.T) {
	ms := New()
	ms.Upsert(cellKey("r1", "cf:a", 100), liveSlot("A"))
	ms.Upsert(cellKey("r1", "other:x", 100), liveSlot("X"))
	ms.Upsert(cellKey("r2", "other:x", 100), liveSlot("X"))

	match := func(column []byte) bool {
		return strings.HasPrefix(string(column), "cf:")
	}
	sc := ms.NewScanner(MaxVersion, nil, nil, match)
	defer sc.Close()

	row, ok := sc.Next()
	if !ok || string(row.Row) != "r1" {
		t.Fatalf("expected r1, got %q ok=%v", row.Row, ok)
	}
	if len(row.Columns) != 1 {
		t.Fatalf("expected predicate to drop other:x, got %v", row.Columns)
	}

	// r2 has no matching column at all and is skipped entirely
	if row, ok := sc.Next(); ok {
		t.Fatalf("expected exhaustion, got row %q", row.Row)
	}
}

func TestScannerVersionCeiling(t *testing.T) {
	ms := New()
	ms.Upsert(cellKey("r1", "cf:a", 100), liveSlot("old"))
	ms.Upsert(cellKey("r1", "cf:a", 300), liveSlot("new"))

	sc := ms.NewScanner(200, nil, nil, nil)
	defer sc.Close()

	row, ok := sc.Next()
	if !ok {
		t.Fatal("expected one row")
	}
	cell := row.Columns["cf:a"]
	if string(cell.Value) != "old" || cell.Version != 100 {
		t.Fatalf("expected (old, 100) under ceiling 200, got (%s, %d)", cell.Value, cell.Version)
	}
}

func TestScannerCloseIdempotent(t *testing.T) {
	ms := New()
	ms.Upsert(cellKey("r1", "cf:a", 100), liveSlot("v"))

	sc := ms.NewScanner(MaxVersion, nil, nil, nil)
	sc.Close()
	sc.Close()

	if _, ok := sc.Next(); ok {
		t.Fatal("closed scanner must report no rows")
	}
}

func TestScannerSeesLateInserts(t *testing.T) {
	ms := New()
	ms.Upsert(cellKey("r1", "cf:a", 100), liveSlot("v"))

	sc := ms.NewScanner(MaxVersion, nil, nil, nil)
	defer sc.Close()

	if _, ok := sc.Next(); !ok {
		t.Fatal("expected r1")
	}

	// inserts ahead of the cursor are visible to subsequent advances
	ms.Upsert(cellKey("r5", "cf:a", 100), liveSlot("v"))
	row, ok := sc.Next()
	if !ok || string(row.Row) != "r5" {
		t.Fatalf("expected late insert r5, got %q ok=%v", row.Row, ok)
	}
}
