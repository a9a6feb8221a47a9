// Package discovery turns flood responses into a map of the network and picks
// source routes from it.
package discovery

import (
	"context"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// Discovery defines the interface for path discovery mechanisms
type Discovery interface {
	// FindPaths returns the path traces known to the mechanism
	FindPaths(ctx context.Context) ([]packet.PathTrace, error)
}
