// Package registry orchestrates the publish pipeline and the
// registry-side read paths. A Registry is a single owned handle over
// the artifact store and the metadata index, passed explicitly into
// the API layer so pipelines stay testable against fixture stores.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"depot/internal/archive"
	"depot/internal/blob"
	"depot/internal/db"
	"depot/internal/digest"
	"depot/internal/resolve"
)

// Registry owns the mutable registry state: content-addressed
// artifact storage plus the version index.
type Registry struct {
	Store blob.Store
	Index *db.DB
}

// New creates a registry handle.
func New(store blob.Store, index *db.DB) *Registry {
	return &Registry{Store: store, Index: index}
}

// PublishRequest carries one publish attempt: the exact uploaded
// archive bytes, the pre-authenticated publisher identity, and an
// optional client-supplied checksum for early mismatch detection.
type PublishRequest struct {
	Archive   []byte
	Publisher string
	Checksum  string
}

// Receipt describes a committed publish.
type Receipt struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Digest    digest.Digest `json:"digest"`
	Size      int64         `json:"size"`
	Published time.Time     `json:"published_at"`
}

// Publish runs the pipeline: validate, compute the content address,
// then commit to the store and the index. Validation completes
// before any write; the artifact is stored before its metadata is
// recorded, so the index never references a digest the store lacks.
// A version conflict leaves the already-written blob in place:
// content addressed, it is shared or harmless.
func (r *Registry) Publish(ctx context.Context, req PublishRequest) (*Receipt, error) {
	m, _, err := archive.Decode(req.Archive)
	if err != nil {
		return nil, err
	}
	m.Sanitize()

	// The digest is computed over the raw uploaded bytes: they are
	// the artifact of record, never a re-encoding.
	d := digest.Sum(req.Archive)

	if req.Checksum != "" {
		claimed, err := digest.Parse(req.Checksum)
		if err != nil {
			return nil, &archive.ValidationError{Kind: archive.KindChecksum, Detail: err.Error()}
		}
		if claimed != d {
			return nil, &archive.ValidationError{
				Kind:   archive.KindChecksum,
				Detail: fmt.Sprintf("client checksum %s does not match archive digest %s", claimed, d),
			}
		}
	}

	if _, err := r.Store.Put(ctx, req.Archive); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	v, err := r.Index.RecordVersion(ctx, db.VersionRecord{
		Package:      m.Name,
		Version:      m.Version,
		Digest:       d.String(),
		SizeBytes:    int64(len(req.Archive)),
		Publisher:    req.Publisher,
		Description:  m.Description,
		Dependencies: db.Constraints(m.Dependencies),
	})
	if err != nil {
		return nil, err
	}

	return &Receipt{
		Name:      v.Package,
		Version:   v.Version,
		Digest:    d,
		Size:      v.SizeBytes,
		Published: v.PublishedAt,
	}, nil
}

// Artifact returns the verified archive bytes for a digest. The
// store recomputes the digest on every read; detected corruption is
// logged loudly here before the error surfaces to the caller.
func (r *Registry) Artifact(ctx context.Context, d digest.Digest) ([]byte, error) {
	b, err := r.Store.Get(ctx, d)
	if err != nil {
		if errors.Is(err, blob.ErrCorrupt) {
			log.Printf("CORRUPT artifact %s: %v", d, err)
		}
		return nil, err
	}
	return b, nil
}

// Download returns the verified archive bytes for a published
// version along with its index record.
func (r *Registry) Download(ctx context.Context, name, version string) ([]byte, *db.Version, error) {
	v, err := r.Index.GetVersion(ctx, name, version)
	if err != nil {
		return nil, nil, err
	}

	d, err := digest.Parse(v.Digest)
	if err != nil {
		return nil, nil, fmt.Errorf("index holds malformed digest for %s@%s: %w", name, version, err)
	}

	b, err := r.Artifact(ctx, d)
	if err != nil {
		return nil, nil, err
	}

	return b, v, nil
}

// Resolve runs the resolver over the index for a set of direct
// requirements. Read-only; runs freely in parallel with publishes.
func (r *Registry) Resolve(ctx context.Context, reqs []resolve.Requirement) (resolve.Resolution, error) {
	return resolve.Resolve(ctx, &indexSource{index: r.Index}, reqs)
}

// indexSource adapts the metadata index to the resolver's read-only
// candidate source.
type indexSource struct {
	index *db.DB
}

func (s *indexSource) ListVersions(ctx context.Context, name string) ([]resolve.Candidate, error) {
	versions, err := s.index.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}

	out := make([]resolve.Candidate, 0, len(versions))
	for _, v := range versions {
		d, err := digest.Parse(v.Digest)
		if err != nil {
			return nil, fmt.Errorf("index holds malformed digest for %s@%s: %w", name, v.Version, err)
		}
		out = append(out, resolve.Candidate{
			Version:      v.Version,
			Digest:       d,
			Dependencies: v.Dependencies,
		})
	}
	return out, nil
}
