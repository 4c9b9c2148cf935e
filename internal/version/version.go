// ABOUTME: Version and identity constants for resonate-media
// ABOUTME: Reported by the CLI and in the remote control handshake
package version

// Version is the release version
const Version = "0.3.0"

// Product is the product name
const Product = "resonate-media"

// Manufacturer is reported to remote clients
const Manufacturer = "Resonate"

// String returns "product version"
func String() string {
	return Product + " " + Version
}
