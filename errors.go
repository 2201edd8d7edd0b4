package lazyblob

import (
	"errors"

	"github.com/aweris/lazyblob/internal/manifest"
	"github.com/aweris/lazyblob/internal/remote"
	"github.com/aweris/lazyblob/internal/store"
)

var (
	ErrUnsupportedDirectoryTracking = errors.New("lazyblob: directories cannot be tracked")
	ErrFileNotFoundToTrack          = errors.New("lazyblob: file does not exist and has no recorded version or source")
	ErrRemoteNotConfigured          = errors.New("lazyblob: no remote configured")
	ErrNotTracked                   = errors.New("lazyblob: not tracked")
	ErrBlobMissing                  = errors.New("lazyblob: blob missing from local cache")
)

// Kinds raised by the manifest, the content store and the remote gateways.
var (
	ErrConfigNotFound     = manifest.ErrNotFound
	ErrConfigParse        = manifest.ErrParse
	ErrManifestExists     = manifest.ErrExists
	ErrPathOutsideProject = manifest.ErrPathOutsideProject
	ErrRemoteExists       = manifest.ErrRemoteExists

	ErrIntegrity   = store.ErrIntegrity
	ErrInvalidHash = store.ErrInvalidHash
	ErrStorageIO   = store.ErrStorageIO

	ErrNotFound           = remote.ErrNotFound
	ErrRemoteUnreachable  = remote.ErrRemoteUnreachable
	ErrAuth               = remote.ErrAuth
	ErrCredentialsMissing = remote.ErrCredentialsMissing
	ErrUploadUnsupported  = remote.ErrUploadUnsupported
	ErrUnsupportedScheme  = remote.ErrUnsupportedScheme
)
