package rendergraph

import "errors"

var (
	ErrEmptyName              = errors.New("name must not be empty")
	ErrDuplicatePass          = errors.New("pass registered twice")
	ErrDuplicateUsage         = errors.New("subresource usage registered twice for the same pass")
	ErrUnknownPass            = errors.New("unknown pass")
	ErrUnknownPassType        = errors.New("unknown pass type")
	ErrInvalidAccess          = errors.New("invalid access intent")
	ErrInvalidRole            = errors.New("role not supported by pass class")
	ErrInvalidMultiplicity    = errors.New("multiplicity must be at least 1")
	ErrUnknownFormat          = errors.New("unknown format")
	ErrNoExternalResource     = errors.New("no external resource name set")
	ErrExternalResourceUnused = errors.New("external resource is not used by any pass")
	ErrExternalInstanceCount  = errors.New("backend reported zero external instances")
	ErrCyclicDependency       = errors.New("cyclic dependency between passes")
	ErrUnresolvedFormat       = errors.New("resource format could not be resolved")
	ErrIncompatibleFormats    = errors.New("resource used with incompatible format aspects")
	ErrNoBackend              = errors.New("graph has no backend")
	ErrNoDescription          = errors.New("graph has no description")
	ErrNotBuilt               = errors.New("graph has not been built")
)
