// Package tables maps the in-memory world onto one row per body and per
// biome and tracks which rows changed since the last successful write. The
// SQL stores use it to write only what a transaction touched.
package tables

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"spherecore/internal/infra/persistence/memory"
)

// Table names. Both SQL dialects use the same schema shape:
// (id TEXT PRIMARY KEY, name TEXT NOT NULL, payload <json>).
const (
	Bodies = "bodies"
	Biomes = "biomes"
)

// All lists the tables in load and write order.
var All = []string{Biomes, Bodies}

// Row is one stored entity. A nil Payload marks a delete.
type Row struct {
	Table   string
	ID      string
	Name    string
	Payload []byte
}

// Deleted reports whether the row removes its entity.
func (r Row) Deleted() bool { return r.Payload == nil }

type digest [sha256.Size]byte

// Tracker remembers a digest of every row last written. It is not safe for
// concurrent use; stores call it under their persist lock.
type Tracker struct {
	written map[string]map[string]digest
}

// NewTracker returns a tracker that treats every entity as unwritten.
func NewTracker() *Tracker {
	t := &Tracker{written: make(map[string]map[string]digest, len(All))}
	for _, table := range All {
		t.written[table] = map[string]digest{}
	}
	return t
}

// Changes returns the rows that differ from the last committed write: upserts
// for new or modified entities and deletes for entities no longer present.
// Rows are ordered by table, then id. Nothing is recorded until Commit.
func (t *Tracker) Changes(snap memory.Snapshot) ([]Row, error) {
	current := make(map[string]map[string]Row, len(All))
	current[Bodies] = make(map[string]Row, len(snap.Bodies))
	for id, b := range snap.Bodies {
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body %s: %w", id, err)
		}
		current[Bodies][id] = Row{Table: Bodies, ID: id, Name: b.Name, Payload: data}
	}
	current[Biomes] = make(map[string]Row, len(snap.Biomes))
	for id, b := range snap.Biomes {
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode biome %s: %w", id, err)
		}
		current[Biomes][id] = Row{Table: Biomes, ID: id, Name: b.Name, Payload: data}
	}

	var rows []Row
	for _, table := range All {
		written := t.written[table]
		for _, id := range sortedIDs(current[table]) {
			row := current[table][id]
			if d, ok := written[id]; ok && d == sha256.Sum256(row.Payload) {
				continue
			}
			rows = append(rows, row)
		}
		for _, id := range sortedIDs(written) {
			if _, ok := current[table][id]; !ok {
				rows = append(rows, Row{Table: table, ID: id})
			}
		}
	}
	return rows, nil
}

// Commit records rows as written.
func (t *Tracker) Commit(rows []Row) {
	for _, r := range rows {
		written := t.written[r.Table]
		if written == nil {
			written = map[string]digest{}
			t.written[r.Table] = written
		}
		if r.Deleted() {
			delete(written, r.ID)
			continue
		}
		written[r.ID] = sha256.Sum256(r.Payload)
	}
}

// Sync marks every entity of snap as written, replacing what the tracker
// knew before. Stores call it after hydrating from the stored rows; a stored
// row with no entity in snap is kept as written so the next Changes deletes it.
func (t *Tracker) Sync(snap memory.Snapshot, stored []Row) error {
	fresh := NewTracker()
	rows, err := fresh.Changes(snap)
	if err != nil {
		return err
	}
	fresh.Commit(rows)
	for _, r := range stored {
		written, ok := fresh.written[r.Table]
		if !ok {
			continue
		}
		if _, ok := written[r.ID]; !ok {
			written[r.ID] = sha256.Sum256(r.Payload)
		}
	}
	t.written = fresh.written
	return nil
}

// Decode turns stored rows into a snapshot. Rows of unknown tables are
// ignored.
func Decode(rows []Row) (memory.Snapshot, error) {
	snap := memory.Snapshot{
		Bodies: map[string]memory.CelestialBody{},
		Biomes: map[string]memory.Biome{},
	}
	for _, r := range rows {
		var err error
		switch r.Table {
		case Bodies:
			var b memory.CelestialBody
			if err = json.Unmarshal(r.Payload, &b); err == nil {
				snap.Bodies[r.ID] = b
			}
		case Biomes:
			var b memory.Biome
			if err = json.Unmarshal(r.Payload, &b); err == nil {
				snap.Biomes[r.ID] = b
			}
		}
		if err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode %s row %s: %w", r.Table, r.ID, err)
		}
	}
	return snap, nil
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
