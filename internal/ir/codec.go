package ir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Current snapshot schema - increment when the snapshot layout changes.
const snapshotSchemaVersion uint16 = 1

// Format selects an on-disk encoding of an operation tree.
type Format uint8

const (
	// FormatTOML is a nested [[ops]] table layout.
	FormatTOML Format = iota + 1
	// FormatYAML uses the same layout as TOML.
	FormatYAML
	// FormatSnapshot is a binary msgpack snapshot.
	FormatSnapshot
)

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	case FormatSnapshot:
		return "irpack"
	default:
		return "unknown"
	}
}

// ErrUnknownFormat is returned for paths whose extension maps to no format.
var ErrUnknownFormat = errors.New("unknown IR format")

// FormatFromPath infers the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".irpack":
		return FormatSnapshot, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected .toml, .yaml, .yml or .irpack)", ErrUnknownFormat, path)
	}
}

type record struct {
	Name  string            `toml:"name" yaml:"name" msgpack:"name"`
	Attrs map[string]string `toml:"attrs,omitempty" yaml:"attrs,omitempty" msgpack:"attrs,omitempty"`
	Ops   []record          `toml:"ops,omitempty" yaml:"ops,omitempty" msgpack:"ops,omitempty"`
}

type snapshot struct {
	Schema uint16 `msgpack:"schema"`
	Count  uint32 `msgpack:"count"`
	Root   record `msgpack:"root"`
}

// Load reads the operation tree stored at path.
func Load(ctx *Context, path string) (*Operation, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open IR: %w", err)
	}
	defer f.Close()
	op, err := Decode(ctx, f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return op, nil
}

// Save writes op to path in the format implied by its extension.
func Save(path string, op *Operation) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create IR file: %w", err)
	}
	if err := Encode(f, op, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// Decode reads an operation tree from r. Operations are created in ctx.
func Decode(ctx *Context, r io.Reader, format Format) (*Operation, error) {
	var rec record
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatSnapshot:
		var snap snapshot
		if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		if snap.Schema != snapshotSchemaVersion {
			return nil, fmt.Errorf("snapshot schema %d is not supported (want %d)", snap.Schema, snapshotSchemaVersion)
		}
		op, err := build(ctx, &snap.Root)
		if err != nil {
			return nil, err
		}
		n, err := safecast.Conv[uint32](Count(op))
		if err != nil {
			return nil, fmt.Errorf("snapshot too large: %w", err)
		}
		if n != snap.Count {
			return nil, fmt.Errorf("snapshot is corrupt: header counts %d operations, found %d", snap.Count, n)
		}
		return op, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
	return build(ctx, &rec)
}

// Encode writes op and its descendants to w.
func Encode(w io.Writer, op *Operation, format Format) error {
	if op == nil {
		return fmt.Errorf("nothing to encode")
	}
	rec := flatten(op)
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(rec)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return enc.Close()
	case FormatSnapshot:
		n, err := safecast.Conv[uint32](Count(op))
		if err != nil {
			return fmt.Errorf("tree too large for a snapshot: %w", err)
		}
		return msgpack.NewEncoder(w).Encode(&snapshot{
			Schema: snapshotSchemaVersion,
			Count:  n,
			Root:   rec,
		})
	default:
		return fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
}

func build(ctx *Context, rec *record) (*Operation, error) {
	op, err := ctx.NewOp(rec.Name, rec.Attrs)
	if err != nil {
		return nil, err
	}
	for i := range rec.Ops {
		child, err := build(ctx, &rec.Ops[i])
		if err != nil {
			return nil, err
		}
		if err := op.Append(child); err != nil {
			return nil, err
		}
	}
	return op, nil
}

func flatten(op *Operation) record {
	rec := record{Name: op.name, Attrs: op.Attrs()}
	if len(op.children) > 0 {
		rec.Ops = make([]record, len(op.children))
		for i, child := range op.children {
			rec.Ops[i] = flatten(child)
		}
	}
	return rec
}
