// Package recoveryhandler implements the HTTP server and client for the
// threshold token endpoints: building tokens, looking them up by factor hash,
// recovering root keys from a factor pair, and rotating individual factors.
//
// Key components:
//   - Handler: processes token requests, archives every token revision as a
//     content-addressed snapshot, and persists the indexed record
//   - Client: typed client implementing api.RecoveryProvider
//
// Failed recovery and rotation attempts collapse missing tokens and wrong
// factors into one generic 401 response, so the endpoints cannot be used to
// probe which lookup hashes exist. Responses never carry factor material; the
// password salt is returned instead so clients re-derive the password factor
// themselves.
package recoveryhandler
