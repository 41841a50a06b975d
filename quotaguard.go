// Package quotaguard builds HTTP clients that pace their calls to a quota
// enforcing management API. See package client/throttle for the interceptor
// and client/throttle/adaptive for delay tuning.
package quotaguard

import (
	"github.com/adamwoolhether/quotaguard/client"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, the default http.Client and http.Transport are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
