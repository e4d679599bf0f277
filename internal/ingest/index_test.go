package ingest

import (
	"reflect"
	"testing"
)

func TestUpsertKeepsOneMappingPerName(t *testing.T) {
	ix := NewTableIndex()
	ix.Upsert("a.arrow", "a_g1")
	ix.Upsert("a.arrow", "a_g2")

	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}
	table, ok := ix.Get("a.arrow")
	if !ok || table != "a_g2" {
		t.Errorf("Get = %q, %v; want a_g2", table, ok)
	}
}

func TestUpsertPreservesInsertionOrder(t *testing.T) {
	ix := NewTableIndex()
	ix.Upsert("a.arrow", "a_g1")
	ix.Upsert("b.arrow", "b_g2")
	ix.Upsert("c.arrow", "c_g3")

	// Updating an existing name must not move it to the back.
	ix.Upsert("a.arrow", "a_g4")

	want := []string{"a.arrow", "b.arrow", "c.arrow"}
	if got := ix.Oldest(3); !reflect.DeepEqual(got, want) {
		t.Errorf("Oldest = %v, want %v", got, want)
	}
	if got := ix.Tables(); !reflect.DeepEqual(got, []string{"a_g4", "b_g2", "c_g3"}) {
		t.Errorf("Tables = %v", got)
	}
}

func TestRemove(t *testing.T) {
	ix := NewTableIndex()
	ix.Upsert("a.arrow", "a_g1")
	ix.Upsert("b.arrow", "b_g2")

	if !ix.Remove("a.arrow") {
		t.Fatal("Remove reported no entry")
	}
	if ix.Remove("a.arrow") {
		t.Error("second Remove reported an entry")
	}
	if _, ok := ix.Get("a.arrow"); ok {
		t.Error("removed entry still resolvable")
	}
	if got := ix.Oldest(10); !reflect.DeepEqual(got, []string{"b.arrow"}) {
		t.Errorf("Oldest = %v", got)
	}
}

func TestRemoveByTableClearsDuplicates(t *testing.T) {
	ix := NewTableIndex()
	ix.Upsert("a.arrow", "tbl2")
	ix.Upsert("b.arrow", "tbl2")
	ix.Upsert("x.arrow", "tbl9")

	removed := ix.RemoveByTable("tbl2")
	if len(removed) != 2 {
		t.Fatalf("removed %v, want both names mapped to tbl2", removed)
	}
	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
	if _, ok := ix.Get("x.arrow"); !ok {
		t.Error("unrelated entry removed")
	}

	if removed := ix.RemoveByTable("tbl2"); removed != nil {
		t.Errorf("second pass removed %v, want nothing", removed)
	}
}

func TestEntries(t *testing.T) {
	ix := NewTableIndex()
	ix.Upsert("a.arrow", "a_g1")
	ix.Upsert("b.arrow", "b_g2")

	want := []Entry{{Name: "a.arrow", Table: "a_g1"}, {Name: "b.arrow", Table: "b_g2"}}
	if got := ix.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries = %v, want %v", got, want)
	}
}
