package listing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rtanaka/barchive/internal/crypto"
	"github.com/rtanaka/barchive/internal/storage"
)

// DefaultTemplate is the short-format row template: name, size, type.
const DefaultTemplate = "%type:-6 %size:12 %name"

// LongTemplate adds permission, user/group and date/time, the teacher's
// "long format" convention (spec §6 template macros, longFormat knob).
const LongTemplate = "%type:-6 %permission:-6 %user:-8 %group:-8 %size:12 %dateTime:-20 %name"

// rowContext builds the storage.HookContext the shared template engine
// expands row.Template against — the listing macro set (spec §6) and the
// hook macro set (spec §4.F) are the identical field list, so one engine
// serves both call sites.
func rowContext(row Row) storage.HookContext {
	return storage.HookContext{
		Number:          row.Number,
		Type:            row.Kind.String(),
		Size:            int64(row.Size),
		DateTime:        row.ModTime,
		User:            strconv.FormatUint(uint64(row.UID), 10),
		Group:           strconv.FormatUint(uint64(row.GID), 10),
		Permission:      row.Permissions,
		PartFrom:        int64(row.OffsetFrom),
		PartTo:          int64(row.OffsetTo),
		Compress:        string(row.Compress),
		Crypt:           string(row.Crypt),
		Name:            row.Name,
		DestinationName: row.DestinationName,
		StorageName:     row.StorageName,
	}
}

// Render produces the header, one expanded line per row, a row-count
// footer, and the signature-state line (spec §4.G step 4). template
// overrides opts.Template/the long-vs-short default when non-empty.
func Render(rows []Row, opts Options, sigState crypto.VerifyState, template string) (string, error) {
	tmpl := template
	if tmpl == "" {
		tmpl = opts.Template
	}
	if tmpl == "" {
		if opts.LongFormat {
			tmpl = LongTemplate
		} else {
			tmpl = DefaultTemplate
		}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%-6s %12s %s\n", "TYPE", "SIZE", "NAME")

	warnings := 0
	for _, row := range rows {
		line, err := storage.ExpandTemplate(tmpl, rowContext(row))
		if err != nil {
			return "", err
		}
		out.WriteString(line)
		out.WriteByte('\n')
		if row.Warning != nil {
			warnings++
			fmt.Fprintf(&out, "  WARNING: %s: %v\n", row.Name, row.Warning)
		}
	}

	fmt.Fprintf(&out, "%d entries", len(rows))
	if warnings > 0 {
		fmt.Fprintf(&out, ", %d warnings", warnings)
	}
	out.WriteByte('\n')
	fmt.Fprintf(&out, "signature: %s\n", sigState)

	return out.String(), nil
}
