package storage

import (
	"context"

	"github.com/rtanaka/barchive/internal/creds"
	"github.com/rtanaka/barchive/internal/crypto"
)

// promptKindForScheme maps a hosted transport Scheme to the credential
// kind internal/creds.Resolver resolves it under (spec §4.H groups FTP,
// SSH-family, and WebDAV logins under distinct prompt kinds so a cached
// FTP password is never offered to an SFTP server and vice versa).
func promptKindForScheme(scheme Scheme) (crypto.PromptKind, bool) {
	switch scheme {
	case SchemeFTP:
		return crypto.PromptFTP, true
	case SchemeSCP, SchemeSFTP:
		return crypto.PromptSSH, true
	case SchemeWebDAV, SchemeWebDAVS:
		return crypto.PromptWebDAV, true
	case SchemeCD, SchemeDVD, SchemeBD, SchemeDev:
		return crypto.PromptDevice, true
	default:
		return 0, false
	}
}

// InitWithCredentials resolves spec's Password through resolver before
// calling b.Init, the glue the job-orchestration layer uses to turn a
// resolver holding a process-wide credential cache and an interactive
// prompt into a concrete, authenticated backend session. spec.Password
// (parsed straight off the storage URI) and options["password"] both take
// priority over the resolver's cache/prompt, matching
// creds.Resolver.Resolve's own precedence. Schemes with no notion of a
// login (file, and any scheme promptKindForScheme doesn't recognize) skip
// resolution and call b.Init unchanged.
func InitWithCredentials(ctx context.Context, b Backend, spec Specifier, options map[string]string, resolver *creds.Resolver) (Info, error) {
	kind, ok := promptKindForScheme(spec.Scheme)
	if !ok || resolver == nil {
		return b.Init(ctx, spec, options)
	}

	name := spec.ServerID()
	password, err := resolver.Resolve(ctx, kind, name, spec.Password, options["password"])
	if err != nil {
		return Info{}, err
	}
	spec.Password = password

	info, err := b.Init(ctx, spec, options)
	if err != nil {
		return Info{}, err
	}
	if acceptErr := resolver.Accept(ctx, kind, name, password); acceptErr != nil {
		return Info{}, acceptErr
	}
	return info, nil
}
