package listing

import "sort"

// Coalesce implements the fragment-coalescing engine invariant: a run of
// rows sharing (kind, name, mtime, device, inode) with contiguous,
// non-overlapping, increasing offset ranges is folded into one displayed
// row whose size is the max covered offset. Sort key: name ascending,
// mtime descending, offset ascending — exactly spec's "(name asc, mtime
// desc, offset asc)".
func Coalesce(rows []Row) []Row {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.After(b.ModTime)
		}
		return a.OffsetFrom < b.OffsetFrom
	})

	var out []Row
	for _, row := range sorted {
		if n := len(out); n > 0 && sameLogicalEntry(out[n-1], row) && out[n-1].OffsetTo == row.OffsetFrom {
			out[n-1].OffsetTo = row.OffsetTo
			if row.OffsetTo > out[n-1].Size {
				out[n-1].Size = row.OffsetTo
			}
			if row.Warning != nil && out[n-1].Warning == nil {
				out[n-1].Warning = row.Warning
			}
			continue
		}
		out = append(out, row)
	}
	return out
}

func sameLogicalEntry(a, b Row) bool {
	return a.Kind == b.Kind && a.Name == b.Name && a.ModTime.Equal(b.ModTime) &&
		a.Device == b.Device && a.Inode == b.Inode
}
