// Package listing implements the listing & aggregation algorithm of spec
// §4.G: walk one or more inputs (a concrete archive or a backend directory
// listing), apply include/exclude glob filters, optionally coalesce
// fragment-split rows, and render header/rows/footer/signature-state output
// through the same template macro engine internal/storage uses for its
// pre/post-processing hooks.
package listing

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ryanuber/go-glob"

	"github.com/rtanaka/barchive/internal/archive"
	"github.com/rtanaka/barchive/internal/compress"
	"github.com/rtanaka/barchive/internal/crypto"
	"github.com/rtanaka/barchive/internal/entry"
	"github.com/rtanaka/barchive/internal/storage"
)

// Options bundles spec §4.G's listing knobs.
type Options struct {
	IncludeList    []string // empty = match everything
	ExcludeList    []string
	GroupByStorage bool // buffer, sort, and coalesce fragment-split rows
	ShowEntries    bool // include directory/link/special rows, not just files
	LongFormat     bool

	// Template selects the row-rendering template (see DefaultTemplate,
	// LongTemplate); a caller-supplied template overrides both.
	Template string
}

// Row is one listed entry — either straight off an archive.Reader or
// synthesized from a storage.DirEntry — in the shape the template engine
// and the coalescing pass both operate on.
type Row struct {
	Number int

	Kind entry.Kind
	Name string

	Size    uint64
	ModTime time.Time

	UID, GID    uint32
	Permissions uint32
	Device      uint64
	Inode       uint64

	// OffsetFrom/OffsetTo bound the byte range this row's fragments
	// cover; for a non-data-bearing or unfragmented row OffsetTo-OffsetFrom
	// equals Size.
	OffsetFrom uint64
	OffsetTo   uint64

	Compress compress.Algorithm
	Crypt    crypto.Suite

	DestinationName string
	StorageName     string

	// Warning holds a row-level error from a partially-readable entry
	// (spec §7 "per-entry errors during listing produce a row-level
	// warning and continue"); Row is still emitted.
	Warning error
}

// Input names one thing to list: either a concrete archive already opened
// for reading, or a backend directory to enumerate and recurse into
// (spec §4.G step 1).
type Input struct {
	Archive *archive.Reader

	Backend     storage.Backend
	Path        string
	Pattern     string // glob derived from the URI; "" matches every name
	StorageName string
}

// ErrNotAnInput is returned by Collect when an Input names neither an
// archive nor a backend.
var ErrNotAnInput = errors.New("listing: input names neither an archive nor a backend")

// CollectArchive walks every entry of r, producing one Row per matching
// entry (spec §4.G steps 1-2). Entries that fail to read produce a
// row-level warning rather than aborting the walk.
func CollectArchive(ctx context.Context, r *archive.Reader, storageName string, opts Options) ([]Row, error) {
	var rows []Row
	number := 0
	for {
		er, err := r.NextEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			// archive.Reader's chunk cursor has no defined resync point
			// past a framing error, so unlike a per-entry payload
			// failure (handled below, per entry, via a warning row)
			// this ends the walk rather than looping on an
			// unrecoverable reader.
			rows = append(rows, Row{Number: number, Warning: err})
			break
		}

		number++
		attrs := er.Attrs()
		if !Matches(attrs.Name, opts) {
			if err := archive.SkipEntry(er); err != nil {
				return rows, err
			}
			continue
		}
		if !opts.ShowEntries && er.Kind() != entry.KindFile && er.Kind() != entry.KindImage && er.Kind() != entry.KindHardLink {
			if err := archive.SkipEntry(er); err != nil {
				return rows, err
			}
			continue
		}

		row := Row{
			Number:      number,
			Kind:        er.Kind(),
			Name:        attrs.Name,
			Size:        attrs.Size,
			ModTime:     attrs.ModTime,
			UID:         attrs.UID,
			GID:         attrs.GID,
			Permissions: attrs.Permissions,
			Device:      attrs.Device,
			Inode:       attrs.Inode,
			OffsetFrom:  0,
			OffsetTo:    attrs.Size,
			StorageName: storageName,
		}

		fragments, _, err := er.ReadAll(false)
		if err != nil {
			row.Warning = err
			rows = append(rows, row)
			continue
		}
		if len(fragments) > 0 {
			row.OffsetFrom = fragments[0].Offset
			max := uint64(0)
			for _, f := range fragments {
				if end := f.Offset + f.Length; end > max {
					max = end
				}
			}
			row.OffsetTo = max
		}

		rows = append(rows, row)
	}
	return rows, nil
}

// CollectDirectory enumerates in.Backend's directory listing at in.Path,
// matching names against in.Pattern as well as opts' include/exclude lists
// (spec §4.G step 1 "recurse only into files matching a pattern derived
// from the URI").
func CollectDirectory(ctx context.Context, in Input, opts Options) ([]Row, error) {
	lister, err := in.Backend.OpenDirList(ctx, in.Path)
	if err != nil {
		return nil, err
	}
	defer lister.Close()

	var rows []Row
	number := 0
	for {
		de, err := lister.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, err
		}
		if in.Pattern != "" && !glob.Glob(in.Pattern, de.Name) {
			continue
		}
		if !Matches(de.Name, opts) {
			continue
		}
		number++
		kind := entry.KindFile
		if de.IsDir {
			kind = entry.KindDir
		}
		rows = append(rows, Row{
			Number:      number,
			Kind:        kind,
			Name:        de.Name,
			Size:        uint64(de.Size),
			ModTime:     de.ModTime,
			OffsetTo:    uint64(de.Size),
			StorageName: in.StorageName,
		})
	}
	return rows, nil
}

// Collect dispatches to CollectArchive or CollectDirectory depending on
// which field of in is set.
func Collect(ctx context.Context, in Input, opts Options) ([]Row, error) {
	switch {
	case in.Archive != nil:
		return CollectArchive(ctx, in.Archive, in.StorageName, opts)
	case in.Backend != nil:
		return CollectDirectory(ctx, in, opts)
	default:
		return nil, ErrNotAnInput
	}
}

// Matches applies spec §4.G step 2: empty include list matches everything,
// then an exclude match always wins. Matching is glob-pattern exact
// against the stored name.
func Matches(name string, opts Options) bool {
	included := len(opts.IncludeList) == 0
	for _, pattern := range opts.IncludeList {
		if glob.Glob(pattern, name) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range opts.ExcludeList {
		if glob.Glob(pattern, name) {
			return false
		}
	}
	return true
}
