package plugins

import "errors"

var (
	// ErrNoMetadata is returned when a directory has neither plugin.json nor package.json
	ErrNoMetadata = errors.New("no plugin metadata")

	// ErrMetadataTooLarge is returned when plugin.json exceeds MaxMetadataSize
	ErrMetadataTooLarge = errors.New("plugin metadata too large")

	// ErrInvalidMetadata is returned when metadata fails structural validation
	ErrInvalidMetadata = errors.New("invalid plugin metadata")

	// ErrUnsafePath is returned when a plugin directory is rejected by path vetting
	ErrUnsafePath = errors.New("unsafe plugin path")

	// ErrPluginNotFound is returned for names the loader has not discovered
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginNotLoaded is returned when operating on a plugin that is not loaded
	ErrPluginNotLoaded = errors.New("plugin not loaded")

	// ErrPluginAlreadyLoaded is returned when registering a plugin twice
	ErrPluginAlreadyLoaded = errors.New("plugin already loaded")

	// ErrUnresolvedDependency is returned when a declared dependency cannot be resolved
	ErrUnresolvedDependency = errors.New("unresolved dependency")

	// ErrInvalidRange is returned for version ranges that cannot be parsed
	ErrInvalidRange = errors.New("invalid version range")
)
