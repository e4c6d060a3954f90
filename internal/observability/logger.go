// Package observability wires bridge metrics into a registry and exports them.
package observability

import "github.com/tphakala/portbridge/internal/logger"

// getLogger resolves the module logger at call time so it follows logger.SetGlobal
func getLogger() logger.Logger {
	return logger.Global().Module("metrics")
}
