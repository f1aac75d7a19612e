package cron

import (
	"context"
	"fmt"
	"os"

	"github.com/bher20/ebill/internal/storage"
	"github.com/bher20/ebill/internal/tariff"
)

// Source yields the tariff table to load and a version string that changes
// whenever the table does.
type Source interface {
	Name() string
	Load(ctx context.Context) (t tariff.Table, version string, err error)
}

// StorageSource reads the latest snapshot of a named table.
type StorageSource struct {
	Store storage.Storage
	Table string
}

func (s StorageSource) Name() string { return "storage:" + s.Table }

func (s StorageSource) Load(ctx context.Context) (tariff.Table, string, error) {
	snap, err := s.Store.GetTable(ctx, s.Table)
	if err != nil {
		return tariff.Table{}, "", err
	}
	if snap == nil {
		return tariff.Table{}, "", fmt.Errorf("%w: %s", storage.ErrTableNotFound, s.Table)
	}
	t, err := storage.DecodeTable(snap.Payload)
	if err != nil {
		return tariff.Table{}, "", fmt.Errorf("decode tariff table %s: %w", s.Table, err)
	}
	return t, snap.Checksum, nil
}

// FileSource reads a YAML or JSON tariff document from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(ctx context.Context) (tariff.Table, string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return tariff.Table{}, "", fmt.Errorf("read tariff file %s: %w", s.Path, err)
	}
	doc, err := tariff.ParseDocument(data, tariff.FormatForPath(s.Path))
	if err != nil {
		return tariff.Table{}, "", err
	}
	t, err := doc.Table()
	if err != nil {
		return tariff.Table{}, "", err
	}
	return t, storage.Checksum(data), nil
}
