package contentstore

import (
	"errors"
	"fmt"
)

// ErrContentStore is the parent of every error returned by this package.
var ErrContentStore = errors.New("content store error")

var (
	// ErrAuth means the credential is missing, malformed, expired or rejected.
	ErrAuth = fmt.Errorf("%w: authentication failed", ErrContentStore)
	// ErrForbidden means the credential is valid but lacks the required scope.
	ErrForbidden = fmt.Errorf("%w: access forbidden", ErrContentStore)
	// ErrUpload covers network, quota and server-side failures during pinning.
	ErrUpload = fmt.Errorf("%w: upload failed", ErrContentStore)
	// ErrRetrievalExhausted is returned once every gateway has failed.
	ErrRetrievalExhausted = fmt.Errorf("%w: all gateways failed", ErrContentStore)
)
