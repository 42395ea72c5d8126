/*
Package client provides a thin Go HTTP client for the Instance
Manager's remote surface (pkg/api), used by the CLI and by tests that
exercise the API server over the network rather than in-process. It
replaces the teacher's generated gRPC client with net/http +
encoding/json, mirroring pkg/api's wire format exactly.
*/
package client
