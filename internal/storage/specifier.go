package storage

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Scheme identifies which transport a Specifier names (spec §6).
type Scheme string

const (
	SchemeFile   Scheme = "file"
	SchemeFTP    Scheme = "ftp"
	SchemeSCP    Scheme = "scp"
	SchemeSFTP   Scheme = "sftp"
	SchemeWebDAV Scheme = "webdav"
	SchemeWebDAVS Scheme = "webdavs"
	SchemeSMB    Scheme = "smb"
	SchemeCD     Scheme = "cd"
	SchemeDVD    Scheme = "dvd"
	SchemeBD     Scheme = "bd"
	SchemeDev    Scheme = "dev"
)

// hostedSchemes are the ones with a [user[:pass]@]host[:port]/path shape;
// the rest are device/plain-path schemes (spec §6).
var hostedSchemes = map[Scheme]bool{
	SchemeFTP: true, SchemeSCP: true, SchemeSFTP: true,
	SchemeWebDAV: true, SchemeWebDAVS: true, SchemeSMB: true,
}

// Specifier is a parsed storage URI (spec §6's StorageSpecifier).
type Specifier struct {
	Scheme   Scheme
	User     string
	Password string
	Host     string
	Port     int
	Path     string
}

// ParseSpecifier parses uri per spec §6's grammar: a bare path defaults to
// SchemeFile; hosted schemes accept [user[:pass]@]host[:port]/path with
// `\@` escaping a literal at-sign inside the user component; an absent
// user falls back to $LOGNAME then $USER. An s3://bucket/key URI yields
// the bucket as Host and the key as Path.
func ParseSpecifier(uri string) (Specifier, error) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return Specifier{Scheme: SchemeFile, Path: uri}, nil
	}
	scheme := Scheme(uri[:idx])
	rest := uri[idx+3:]

	switch scheme {
	case SchemeFile:
		return Specifier{Scheme: SchemeFile, Path: rest}, nil
	case SchemeCD, SchemeDVD, SchemeBD, SchemeDev:
		return Specifier{Scheme: scheme, Path: rest}, nil
	case SchemeFTP, SchemeSCP, SchemeSFTP, SchemeWebDAV, SchemeWebDAVS, SchemeSMB:
		return parseHostedSpecifier(scheme, rest)
	case Scheme("s3"):
		bucket, key, _ := strings.Cut(rest, "/")
		return Specifier{Scheme: scheme, Host: bucket, Path: key}, nil
	default:
		return Specifier{}, fmt.Errorf("%w: unrecognized scheme %q", ErrInvalidSpecifier, scheme)
	}
}

// parseHostedSpecifier parses the "[user[:pass]@]host[:port]/path" shape.
// The user/password portion is scanned by hand (not net/url) because `\@`
// must escape a literal at-sign, which net/url's userinfo grammar does not
// support.
func parseHostedSpecifier(scheme Scheme, rest string) (Specifier, error) {
	atIdx := findUnescapedAt(rest)
	var userinfo, hostpath string
	if atIdx >= 0 {
		userinfo, hostpath = rest[:atIdx], rest[atIdx+1:]
	} else {
		hostpath = rest
	}

	spec := Specifier{Scheme: scheme}
	if userinfo != "" {
		user, pass, _ := strings.Cut(userinfo, ":")
		spec.User = unescapeAt(user)
		spec.Password = unescapeAt(pass)
	} else {
		spec.User = defaultUser()
	}

	slashIdx := strings.Index(hostpath, "/")
	var hostport string
	if slashIdx < 0 {
		hostport = hostpath
	} else {
		hostport = hostpath[:slashIdx]
		spec.Path = hostpath[slashIdx+1:]
	}
	host, portStr, hasPort := strings.Cut(hostport, ":")
	spec.Host = host
	if hasPort {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Specifier{}, fmt.Errorf("%w: bad port %q", ErrInvalidSpecifier, portStr)
		}
		spec.Port = port
	}
	if spec.Host == "" {
		return Specifier{}, fmt.Errorf("%w: missing host in %q", ErrInvalidSpecifier, string(scheme)+"://"+rest)
	}
	return spec, nil
}

// findUnescapedAt returns the index of the first "@" in s not preceded by
// a backslash, or -1 if none, stopping at the first unescaped "/" since
// userinfo cannot contain a path separator.
func findUnescapedAt(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++ // skip the escaped character
		case '/':
			return -1
		case '@':
			return i
		}
	}
	return -1
}

func unescapeAt(s string) string {
	return strings.ReplaceAll(s, `\@`, "@")
}

func defaultUser() string {
	if v := os.Getenv("LOGNAME"); v != "" {
		return v
	}
	return os.Getenv("USER")
}

// Equal reports whether a and b name the same storage session (spec §4.F
// "equalSpecifiers"): same scheme, host, port and path; user/password are
// compared too since distinct credentials against the same host are
// distinct sessions for the server-allocation semaphore's purposes.
func (s Specifier) Equal(o Specifier) bool {
	return s.Scheme == o.Scheme && s.User == o.User && s.Password == o.Password &&
		s.Host == o.Host && s.Port == o.Port && s.Path == o.Path
}

// ServerID identifies the "server" (host+port+user) a connection semaphore
// slot is allocated against (spec §5: "per server... a process-wide
// semaphore"); two specifiers naming the same host+port+user share a slot
// regardless of path.
func (s Specifier) ServerID() string {
	if !hostedSchemes[s.Scheme] {
		return ""
	}
	return fmt.Sprintf("%s://%s@%s:%d", s.Scheme, s.User, s.Host, s.Port)
}

// Redacted renders a printable form of s with the password elided (spec
// §4.F "getPrintableName(s) -> string // password redacted").
func (s Specifier) Redacted() string {
	var b strings.Builder
	b.WriteString(string(s.Scheme))
	b.WriteString("://")
	if hostedSchemes[s.Scheme] {
		if s.User != "" {
			b.WriteString(escapeAt(s.User))
			if s.Password != "" {
				b.WriteString(":***")
			}
			b.WriteByte('@')
		}
		b.WriteString(s.Host)
		if s.Port != 0 {
			fmt.Fprintf(&b, ":%d", s.Port)
		}
		b.WriteByte('/')
	}
	b.WriteString(s.Path)
	return b.String()
}

func escapeAt(s string) string {
	return strings.ReplaceAll(s, "@", `\@`)
}
