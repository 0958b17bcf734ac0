package crypto

import "context"

// PromptKind distinguishes which credential a PasswordPrompt call is for,
// since a single archive operation may need to authenticate against
// several independent targets in sequence (the archive's own passphrase,
// then a storage backend's transport credentials).
type PromptKind int

const (
	PromptArchive PromptKind = iota
	PromptFTP
	PromptSSH
	PromptWebDAV
	PromptDevice
)

func (k PromptKind) String() string {
	switch k {
	case PromptArchive:
		return "archive"
	case PromptFTP:
		return "ftp"
	case PromptSSH:
		return "ssh"
	case PromptWebDAV:
		return "webdav"
	case PromptDevice:
		return "device"
	default:
		return "unknown"
	}
}

// PasswordPrompt asks the caller for a secret associated with name (e.g. a
// host, archive path, or key id) and kind. Implementations range from a
// terminal prompt to a lookup against internal/creds's cache.
type PasswordPrompt func(ctx context.Context, kind PromptKind, name string) (string, error)

// StaticPrompt returns a PasswordPrompt that always answers with password,
// for non-interactive use (tests, scripted restores).
func StaticPrompt(password string) PasswordPrompt {
	return func(context.Context, PromptKind, string) (string, error) {
		return password, nil
	}
}
