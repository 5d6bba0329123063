// Package proxy builds typed gRPC clients for services listed in a service
// directory. A Factory loads the directory once, can pin every endpoint to
// the server of a selected line, and caches client connections.
package proxy
