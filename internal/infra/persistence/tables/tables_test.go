package tables

import (
	"strings"
	"testing"

	"spherecore/internal/infra/persistence/memory"
	"spherecore/pkg/domain"
)

func world(t *testing.T) memory.Snapshot {
	t.Helper()
	mars := domain.NewCelestialBody("Mars", 3.721, 210, 3.39e6, 6.42e23, true)
	mars.ID = "mars"
	luna := domain.NewCelestialBody("Luna", 1.62, 250, 1.737e6, 7.35e22, false)
	luna.ID = "luna"
	return memory.Snapshot{
		Bodies: map[string]memory.CelestialBody{"mars": *mars, "luna": *luna},
		Biomes: map[string]memory.Biome{"tundra": {Base: domain.Base{ID: "tundra"}, Name: "Tundra"}},
	}
}

func keys(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		op := "upsert"
		if r.Deleted() {
			op = "delete"
		}
		out = append(out, op+" "+r.Table+"/"+r.ID)
	}
	return out
}

func TestChangesWritesOnlyWhatDiffers(t *testing.T) {
	tr := NewTracker()
	snap := world(t)

	rows, err := tr.Changes(snap)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if got := strings.Join(keys(rows), ","); got != "upsert biomes/tundra,upsert bodies/luna,upsert bodies/mars" {
		t.Fatalf("unexpected first write %s", got)
	}
	if rows[1].Name != "Luna" {
		t.Fatalf("row name not carried: %+v", rows[1])
	}
	tr.Commit(rows)

	if rows, _ := tr.Changes(snap); len(rows) != 0 {
		t.Fatalf("unchanged world must write nothing, got %v", keys(rows))
	}

	mars := snap.Bodies["mars"]
	mars.SurfaceTemperature = 215
	snap.Bodies["mars"] = mars
	delete(snap.Biomes, "tundra")
	rows, err = tr.Changes(snap)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if got := strings.Join(keys(rows), ","); got != "delete biomes/tundra,upsert bodies/mars" {
		t.Fatalf("unexpected incremental write %s", got)
	}
}

func TestUncommittedChangesAreRetried(t *testing.T) {
	tr := NewTracker()
	snap := world(t)
	first, _ := tr.Changes(snap)
	second, _ := tr.Changes(snap)
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("rows from a failed write must be offered again: %d then %d", len(first), len(second))
	}
}

func TestDecodeAndSync(t *testing.T) {
	src := NewTracker()
	rows, err := src.Changes(world(t))
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	rows = append(rows, Row{Table: "legacy", ID: "x", Payload: []byte("{}")})

	snap, err := Decode(rows)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Bodies) != 2 || len(snap.Biomes) != 1 {
		t.Fatalf("unexpected decoded world: %d bodies, %d biomes", len(snap.Bodies), len(snap.Biomes))
	}
	if luna := snap.Bodies["luna"]; luna.Atmosphere != nil || luna.Name != "Luna" {
		t.Fatalf("luna decoded wrong: %+v", luna)
	}

	tr := NewTracker()
	if err := tr.Sync(snap, rows); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if rows, _ := tr.Changes(snap); len(rows) != 0 {
		t.Fatalf("synced world must write nothing, got %v", keys(rows))
	}
	delete(snap.Bodies, "luna")
	if rows, _ := tr.Changes(snap); len(rows) != 1 || !rows[0].Deleted() {
		t.Fatalf("expected luna delete, got %v", keys(rows))
	}
}

func TestDecodeRejectsCorruptRows(t *testing.T) {
	_, err := Decode([]Row{{Table: Bodies, ID: "earth", Payload: []byte("not-json")}})
	if err == nil || !strings.Contains(err.Error(), "decode bodies row earth") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestSyncDeletesRowsDroppedOnLoad(t *testing.T) {
	snap := world(t)
	stored := []Row{
		{Table: Biomes, ID: "unnamed", Payload: []byte(`{"name":""}`)},
		{Table: "legacy", ID: "x", Payload: []byte("{}")},
	}
	tr := NewTracker()
	if err := tr.Sync(snap, stored); err != nil {
		t.Fatalf("sync: %v", err)
	}
	rows, err := tr.Changes(snap)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if got := strings.Join(keys(rows), ","); got != "delete biomes/unnamed" {
		t.Fatalf("expected only the dropped biome deleted, got %s", got)
	}
}
