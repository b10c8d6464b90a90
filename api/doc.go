/*
Package api defines the wire types shared by the HTTP handlers and their
typed clients.

The HTTP surface is split into two subpackages:

 1. recoveryhandler - threshold token endpoints: build, lookup, recover, rotate
 2. custodyhandler - encrypted share custody endpoints gated by identity
    verification and rate limiting

Both subpackages follow the same shape: a Handler that mounts its routes on a
chi router, and a Client implementing the matching provider interface from
this package.

# Request Conventions

Factors, root keys, and lookup hashes travel as 64-character hex strings.
Binary blobs (profile payloads) travel base64-encoded through encoding/json.
Custody operations authenticate through the X-Verification-Method and
X-Verification-Proof headers, completed against a challenge previously issued
by the verification start endpoint.

# Error Conventions

Failed recovery and rotation attempts return a generic 401 regardless of
whether the token was missing or the factors were wrong, so the endpoints
cannot be used to probe which lookup hashes exist. Custody conflicts map to
409, absent shares to 404, and rate-limited requests to 429 with a
Retry-After header in seconds. Response bodies never contain factor or key
material beyond what the operation exists to return.
*/
package api
