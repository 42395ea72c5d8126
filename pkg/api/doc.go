/*
Package api exposes the Instance Manager's remote surface over
net/http + encoding/json: GET /v1/instances returns the current
(instances, version) pair, and POST /v1/instances/updates submits an
(expected_version, batch) update through the Manager's Raft-replicated
Apply path. This replaces the teacher's generated-protobuf gRPC
service — see DESIGN.md for why grpc/protobuf were dropped — but keeps
the teacher's pkg/api/health.go idiom: a *http.ServeMux, JSON
request/response structs, http.Error for failures.
*/
package api
