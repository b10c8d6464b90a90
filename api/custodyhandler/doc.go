// Package custodyhandler implements the HTTP server and client for encrypted
// share custody: storing, retrieving, updating, and deleting one share per
// identity, plus audit log inspection and verification challenge issuance.
//
// Key components:
//   - Handler: gates every share operation behind identity verification and,
//     for the audited operations, the sliding-window rate limiter
//   - Client: typed client implementing api.CustodyProvider
//
// Store, retrieve, and update attempts land in the append-only access log
// with their outcome; the rate limiter reads lockouts back out of that same
// log. Rejections for an active lockout are deliberately not logged, so a
// locked identity cannot have its lockout extended by further probing.
package custodyhandler
