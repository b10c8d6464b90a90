package common

// PackageName is the canonical service name used for logging, metrics
// namespacing, and trace resource attribution.
const PackageName = "wallet-recovery-backend"

// Version is set at build time via -ldflags. The default marks local builds.
var Version = "dev"
