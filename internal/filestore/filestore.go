// Package filestore keeps uploaded mission evidence outside the database.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"guildline/internal/domain"
)

var ErrNotFound = errors.New("file not found")

type Meta struct {
	Filename    string
	ContentType string
}

type Store interface {
	Put(ctx context.Context, data []byte, meta Meta) (domain.EvidenceFile, error)
	Delete(ctx context.Context, ref string) error
	Open(ctx context.Context, ref string) (io.ReadCloser, domain.EvidenceFile, error)
}

// Disk stores each file under Dir by ref with a JSON metadata sidecar.
type Disk struct {
	Dir string
	Now func() time.Time
}

func (d Disk) paths(ref string) (string, string, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return "", "", fmt.Errorf("%w: invalid ref %q", ErrNotFound, ref)
	}
	base := filepath.Join(d.Dir, ref)
	return base + ".bin", base + ".json", nil
}

func (d Disk) Put(ctx context.Context, data []byte, meta Meta) (domain.EvidenceFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.EvidenceFile{}, err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return domain.EvidenceFile{}, err
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	f := domain.EvidenceFile{
		Ref:         uuid.NewString(),
		Filename:    filepath.Base(meta.Filename),
		ContentType: meta.ContentType,
		Size:        int64(len(data)),
		StoredAt:    now().UTC().Format(time.RFC3339Nano),
	}
	blob, side, _ := d.paths(f.Ref)
	if err := writeAtomic(blob, data); err != nil {
		return domain.EvidenceFile{}, err
	}
	sidecar, err := json.Marshal(f)
	if err != nil {
		return domain.EvidenceFile{}, err
	}
	if err := writeAtomic(side, sidecar); err != nil {
		_ = os.Remove(blob)
		return domain.EvidenceFile{}, err
	}
	return f, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (d Disk) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, side, err := d.paths(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(blob); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if err := os.Remove(side); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d Disk) Open(ctx context.Context, ref string) (io.ReadCloser, domain.EvidenceFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.EvidenceFile{}, err
	}
	blob, side, err := d.paths(ref)
	if err != nil {
		return nil, domain.EvidenceFile{}, err
	}
	var f domain.EvidenceFile
	raw, err := os.ReadFile(side)
	if errors.Is(err, os.ErrNotExist) {
		return nil, f, ErrNotFound
	}
	if err != nil {
		return nil, f, err
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, f, fmt.Errorf("evidence metadata %s: %w", ref, err)
	}
	rc, err := os.Open(blob)
	if errors.Is(err, os.ErrNotExist) {
		return nil, f, ErrNotFound
	}
	return rc, f, err
}
