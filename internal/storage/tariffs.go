package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bher20/ebill/internal/tariff"
)

// ErrTableNotFound is returned when no snapshot exists for a table name.
var ErrTableNotFound = errors.New("tariff table not found")

// EncodeTable renders a table as the JSON document stored in snapshots.
func EncodeTable(t tariff.Table) ([]byte, error) {
	return tariff.DocumentFromTable(t).Marshal(tariff.FormatJSON)
}

// DecodeTable parses a snapshot payload back into a table.
func DecodeTable(payload []byte) (tariff.Table, error) {
	doc, err := tariff.ParseDocument(payload, tariff.FormatJSON)
	if err != nil {
		return tariff.Table{}, err
	}
	return doc.Table()
}

// SaveRegistry stores the registry contents under name. A snapshot is only
// written when the contents differ from the latest one; saved reports whether
// a write happened.
func SaveRegistry(ctx context.Context, st Storage, name string, reg *tariff.Registry) (snap *TableSnapshot, saved bool, err error) {
	payload, err := EncodeTable(reg.Snapshot())
	if err != nil {
		return nil, false, fmt.Errorf("encode tariff table %s: %w", name, err)
	}
	sum := Checksum(payload)

	latest, err := st.GetTable(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("load tariff table %s: %w", name, err)
	}
	if latest != nil && latest.Checksum == sum {
		return latest, false, nil
	}

	next := TableSnapshot{Name: name, Payload: payload, Checksum: sum}
	next.normalize()
	if err := st.SaveTable(ctx, next); err != nil {
		return nil, false, fmt.Errorf("save tariff table %s: %w", name, err)
	}
	return &next, true, nil
}

// LoadRegistry replaces the registry contents with the latest snapshot of
// name. The registry is left untouched on any error.
func LoadRegistry(ctx context.Context, st Storage, name string, reg *tariff.Registry) (*TableSnapshot, error) {
	snap, err := st.GetTable(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load tariff table %s: %w", name, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	t, err := DecodeTable(snap.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode tariff table %s: %w", name, err)
	}
	if err := reg.Import(t); err != nil {
		return nil, fmt.Errorf("import tariff table %s: %w", name, err)
	}
	return snap, nil
}
