package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"spherecore/internal/blob"
)

const (
	checkpointPrefix       = "checkpoints/"
	checkpointManifestName = "manifest.json"
	checkpointFormat       = 1
	// checkpointParallelism bounds concurrent blob reads and writes.
	checkpointParallelism = 8
)

// ErrInvalidCheckpointName is returned for empty names or names containing a path separator.
var ErrInvalidCheckpointName = errors.New("invalid checkpoint name")

// CheckpointManifest indexes an exported checkpoint. Bodies are stored as
// separate blobs; biome definitions are small and kept inline.
type CheckpointManifest struct {
	Name      string    `json:"name"`
	Format    int       `json:"format"`
	CreatedAt time.Time `json:"created_at"`
	Bodies    []string  `json:"bodies"`
	Biomes    []Biome   `json:"biomes"`
}

func checkpointKey(name string, parts ...string) string {
	return checkpointPrefix + path.Join(append([]string{name}, parts...)...)
}

func validCheckpointName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidCheckpointName, name)
	}
	return nil
}

// ExportCheckpoint writes every committed body and biome to archive under
// checkpoints/<name>/. Body blobs are written in parallel after the store
// snapshot is taken; the manifest is written last so a partial export is
// never listed, and a failed export removes what it wrote. Exporting over an
// existing checkpoint fails with blob.ErrExists.
func (s *Service) ExportCheckpoint(ctx context.Context, archive blob.Store, name string) (CheckpointManifest, error) {
	if err := validCheckpointName(name); err != nil {
		return CheckpointManifest{}, err
	}
	ctx, span := s.tracer.Start(ctx, "export_checkpoint")
	start := time.Now()
	manifest, err := s.exportCheckpoint(ctx, archive, name)
	span.End(err)
	s.metrics.Observe(ctx, "export_checkpoint", err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("checkpoint export failed", "checkpoint", name, "error", err)
		return CheckpointManifest{}, err
	}
	s.logger.Info("checkpoint exported", "checkpoint", name, "bodies", len(manifest.Bodies), "biomes", len(manifest.Biomes))
	return manifest, nil
}

func (s *Service) exportCheckpoint(ctx context.Context, archive blob.Store, name string) (CheckpointManifest, error) {
	var (
		bodies []CelestialBody
		biomes []Biome
	)
	if err := s.store.View(ctx, func(v TransactionView) error {
		bodies = v.ListBodies()
		biomes = v.ListBiomes()
		return nil
	}); err != nil {
		return CheckpointManifest{}, err
	}

	manifestKey := checkpointKey(name, checkpointManifestName)
	if _, err := archive.Head(ctx, manifestKey); err == nil {
		return CheckpointManifest{}, fmt.Errorf("checkpoint %s: %w", name, blob.ErrExists)
	} else if !errors.Is(err, blob.ErrNotFound) {
		return CheckpointManifest{}, fmt.Errorf("head %s: %w", manifestKey, err)
	}
	// Blobs without a manifest are left over from an interrupted export.
	if err := clearCheckpoint(ctx, archive, name); err != nil {
		return CheckpointManifest{}, err
	}

	manifest := CheckpointManifest{
		Name:      name,
		Format:    checkpointFormat,
		CreatedAt: s.now(),
		Bodies:    make([]string, len(bodies)),
		Biomes:    biomes,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkpointParallelism)
	for i := range bodies {
		body := bodies[i]
		manifest.Bodies[i] = body.ID
		g.Go(func() error {
			return putJSON(gctx, archive, checkpointKey(name, "bodies", body.ID+".json"), body)
		})
	}
	err := g.Wait()
	if err == nil {
		err = putJSON(ctx, archive, manifestKey, manifest)
	}
	if err != nil {
		if cerr := clearCheckpoint(context.WithoutCancel(ctx), archive, name); cerr != nil {
			s.logger.Warn("checkpoint cleanup failed", "checkpoint", name, "error", cerr)
		}
		return CheckpointManifest{}, err
	}
	return manifest, nil
}

// clearCheckpoint deletes every blob stored under the checkpoint's prefix.
func clearCheckpoint(ctx context.Context, archive blob.Store, name string) error {
	prefix := checkpointKey(name) + "/"
	infos, err := archive.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}
	for _, info := range infos {
		if _, err := archive.Delete(ctx, info.Key); err != nil {
			return fmt.Errorf("delete %s: %w", info.Key, err)
		}
	}
	return nil
}

// ImportCheckpoint loads a checkpoint from archive and upserts its biomes and
// bodies in one transaction. Stored entities absent from the checkpoint are
// left untouched.
func (s *Service) ImportCheckpoint(ctx context.Context, archive blob.Store, name string) (CheckpointManifest, Result, error) {
	if err := validCheckpointName(name); err != nil {
		return CheckpointManifest{}, Result{}, err
	}
	var manifest CheckpointManifest
	if err := getJSON(ctx, archive, checkpointKey(name, checkpointManifestName), &manifest); err != nil {
		return CheckpointManifest{}, Result{}, err
	}
	if manifest.Format != checkpointFormat {
		return CheckpointManifest{}, Result{}, fmt.Errorf("checkpoint %s: unsupported format %d", name, manifest.Format)
	}

	bodies := make([]CelestialBody, len(manifest.Bodies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkpointParallelism)
	for i, id := range manifest.Bodies {
		g.Go(func() error {
			return getJSON(gctx, archive, checkpointKey(name, "bodies", id+".json"), &bodies[i])
		})
	}
	if err := g.Wait(); err != nil {
		return CheckpointManifest{}, Result{}, err
	}

	res, err := s.run(ctx, "import_checkpoint", name, func(tx Transaction) (string, error) {
		for _, biome := range manifest.Biomes {
			if _, ok := tx.FindBiome(biome.ID); ok {
				if _, err := tx.UpdateBiome(biome.ID, func(b *Biome) error {
					*b = biome
					return nil
				}); err != nil {
					return name, err
				}
				continue
			}
			if _, err := tx.CreateBiome(biome); err != nil {
				return name, err
			}
		}
		for _, body := range bodies {
			if _, ok := tx.FindBody(body.ID); ok {
				if _, err := tx.UpdateBody(body.ID, func(b *CelestialBody) error {
					*b = *body.Clone()
					return nil
				}); err != nil {
					return name, err
				}
				continue
			}
			if _, err := tx.CreateBody(body); err != nil {
				return name, err
			}
		}
		return name, nil
	})
	if err != nil {
		return CheckpointManifest{}, res, err
	}
	return manifest, res, nil
}

// ListCheckpoints returns the names of complete checkpoints in archive.
func ListCheckpoints(ctx context.Context, archive blob.Store) ([]string, error) {
	infos, err := archive.List(ctx, checkpointPrefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		rest := strings.TrimPrefix(info.Key, checkpointPrefix)
		name, file, ok := strings.Cut(rest, "/")
		if ok && file == checkpointManifestName {
			names = append(names, name)
		}
	}
	return names, nil
}

func putJSON(ctx context.Context, archive blob.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := archive.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func getJSON(ctx context.Context, archive blob.Store, key string, v any) error {
	_, rc, err := archive.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
