// Package snapshot persists tables as immutable, timestamped Parquet objects.
//
// Keys have the form {layer}/{name}_{YYYYmmdd_HHMMSS}.parquet. A snapshot is
// never overwritten; a later run writes a new key that supersedes it.
package snapshot

import (
	"bytes"
	"context"
	stderrors "errors"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/formats/columnar"
	"github.com/ajitpratap0/scholar/pkg/logger"
	"github.com/ajitpratap0/scholar/pkg/storage"
)

// TimestampLayout is the run timestamp embedded in every key.
const TimestampLayout = "20060102_150405"

// Layer is a medallion layer.
type Layer string

const (
	Bronze Layer = "bronze"
	Silver Layer = "silver"
)

// Snapshot identifies one persisted table.
type Snapshot struct {
	Layer   Layer     `json:"layer"`
	Name    string    `json:"name"`
	Key     string    `json:"key"`
	TakenAt time.Time `json:"taken_at"`
	Rows    int       `json:"rows"`
}

// Key returns the object key of name in layer at the given run time.
func Key(layer Layer, name string, at time.Time) string {
	return path.Join(string(layer), name+"_"+at.UTC().Format(TimestampLayout)+columnar.Parquet.Extension())
}

// ParseKey splits a key produced by Key.
func ParseKey(key string) (Snapshot, bool) {
	dir, base := path.Split(key)
	if !strings.HasSuffix(base, columnar.Parquet.Extension()) {
		return Snapshot{}, false
	}
	stem := strings.TrimSuffix(base, columnar.Parquet.Extension())
	if len(stem) < len(TimestampLayout)+2 || stem[len(stem)-len(TimestampLayout)-1] != '_' {
		return Snapshot{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, stem[len(stem)-len(TimestampLayout):], time.UTC)
	if err != nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Layer:   Layer(strings.TrimSuffix(dir, "/")),
		Name:    stem[:len(stem)-len(TimestampLayout)-1],
		Key:     key,
		TakenAt: ts,
	}, true
}

// Stager writes and reads snapshots on a store.
type Stager struct {
	store       storage.Store
	compression string
}

// NewStager returns a stager writing Parquet with the given codec.
func NewStager(store storage.Store, compression string) *Stager {
	return &Stager{store: store, compression: compression}
}

// Stage persists table under layer with the run timestamp at. The table is
// written as given; nothing is coerced.
func (s *Stager) Stage(ctx context.Context, layer Layer, table *core.Table, at time.Time) (Snapshot, error) {
	snap := Snapshot{
		Layer:   layer,
		Name:    table.Name,
		Key:     Key(layer, table.Name, at),
		TakenAt: at.UTC().Truncate(time.Second),
		Rows:    table.Len(),
	}

	var buf bytes.Buffer
	if err := columnar.WriteTable(&buf, table, s.compression); err != nil {
		return Snapshot{}, errors.Wrap(err, errors.ErrorTypePersistFailure, "failed to encode snapshot").
			WithDetail("key", snap.Key)
	}

	if err := s.store.Put(ctx, snap.Key, &buf); err != nil {
		msg := "failed to write snapshot"
		if stderrors.Is(err, storage.ErrExist) {
			msg = "snapshot already exists"
		}
		return Snapshot{}, errors.Wrap(err, errors.ErrorTypePersistFailure, msg).
			WithDetail("key", snap.Key)
	}

	logger.WithContext(ctx).Debug("Snapshot written",
		zap.String("key", snap.Key),
		zap.Int("rows", snap.Rows))
	return snap, nil
}

// Latest returns the newest snapshot of name in layer.
func (s *Stager) Latest(ctx context.Context, layer Layer, name string) (Snapshot, error) {
	prefix := path.Join(string(layer), name+"_")
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list snapshots").
			WithDetail("prefix", prefix)
	}

	var latest Snapshot
	found := false
	for _, key := range keys {
		snap, ok := ParseKey(key)
		if !ok || snap.Name != name || snap.Layer != layer {
			continue
		}
		if !found || snap.TakenAt.After(latest.TakenAt) {
			latest = snap
			found = true
		}
	}
	if !found {
		return Snapshot{}, errors.Newf(errors.ErrorTypeNotFound, "no %s snapshot of %s", layer, name)
	}
	return latest, nil
}

// LatestRun returns one snapshot per name, all taken at the newest run time
// for which every name has a snapshot in layer. Snapshots left by a run that
// stopped partway are skipped rather than mixed with another run.
func (s *Stager) LatestRun(ctx context.Context, layer Layer, names []string) ([]Snapshot, error) {
	keys, err := s.store.List(ctx, string(layer)+"/")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list snapshots").
			WithDetail("prefix", string(layer))
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	runs := make(map[int64]map[string]Snapshot)
	for _, key := range keys {
		snap, ok := ParseKey(key)
		if !ok || snap.Layer != layer || !wanted[snap.Name] {
			continue
		}
		at := snap.TakenAt.Unix()
		if runs[at] == nil {
			runs[at] = make(map[string]Snapshot, len(names))
		}
		runs[at][snap.Name] = snap
	}

	var best int64
	found := false
	for at, byName := range runs {
		if len(byName) != len(wanted) {
			continue
		}
		if !found || at > best {
			best, found = at, true
		}
	}
	if !found {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no %s run has a snapshot of every table", layer).
			WithDetail("tables", names)
	}

	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, runs[best][name])
	}
	return out, nil
}

// Load reads a snapshot back into a table named after it.
func (s *Stager) Load(ctx context.Context, snap Snapshot) (*core.Table, error) {
	rc, err := s.store.Get(ctx, snap.Key)
	if err != nil {
		errType := errors.ErrorTypeInternal
		if stderrors.Is(err, storage.ErrNotExist) {
			errType = errors.ErrorTypeNotFound
		}
		return nil, errors.Wrap(err, errType, "failed to open snapshot").WithDetail("key", snap.Key)
	}
	defer rc.Close() //nolint:errcheck

	table, err := columnar.ReadTable(rc, snap.Name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to decode snapshot").WithDetail("key", snap.Key)
	}
	return table, nil
}
