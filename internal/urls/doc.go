// Package urls provides centralized constants for all documentation URLs used
// throughout the application.
//
// Error hints and CLI help reference these instead of embedding links inline,
// so they can be updated in one place.
//
// Usage:
//
//	import "github.com/stikjit/jitstub/internal/urls"
//
//	fmt.Printf("Protocol reference: %s\n", urls.RemoteProtocol)
package urls
