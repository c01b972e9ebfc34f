// Package http is the operator-facing admin API. Guests never reach it; it
// lets the embedding application inspect and change what guests may do.
//
//	GET  /health              liveness, active runtimes, fetch breaker state
//	GET  /permissions         allowlist snapshot
//	POST /permissions/allow   {"kind": "url", "value": "https://example.com/"}
//	POST /permissions/deny    same body, removes the entry
//	POST /permissions/flags   {"hrtime": true, "exec": false, "read_all": true}
//	GET  /permissions/audit   ?limit=50&denied=true
//	GET  /metrics             Prometheus exposition
//	GET  /log/level           zap level, PUT to change it
package http
