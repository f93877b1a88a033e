package model

// AssetCheck is the check result of a single manifest asset.
type AssetCheck struct {
	Descriptor AssetDescriptor
	// Probed is true when the source has been opened.
	Probed bool
	// Err is the probe error, if any.
	Err string
}

// ManifestCheck is the check result of a manifest.
type ManifestCheck struct {
	Manifest Manifest
	Assets   []AssetCheck
	Counts   map[AssetKind]int
	// Unreachable is the number of probed assets that could not be fetched.
	Unreachable int
}
