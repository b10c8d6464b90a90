// Package main (cmd/walletctl) implements the client-side tooling for the
// wallet recovery service.
//
// walletctl covers the full lifecycle of a recovery token: generating factor
// and root key material, registering a token with the service, recovering
// root keys from a factor pair, rotating a compromised factor, and managing
// the custodied backup share of the recovery factor. It also works fully
// offline against a token file for environments without the service.
//
// Commands:
//
//	generate        - Generate fresh factors and root keys (hex, printed once)
//	register        - Build a threshold token and register it with the service
//	info            - Fetch the public metadata of a registered token
//	recover         - Recover root keys from a factor pair
//	rotate          - Replace one factor of a registered token
//	build-local     - Build a token offline and write it to a file
//	recover-local   - Recover root keys from a token file without the service
//	split           - Split a secret into threshold shares for offline custody
//	combine         - Reassemble a secret from encoded shares
//	verify-start    - Start a verification challenge for a custody identity
//	store-share     - Store an encoded share with the custody service
//	retrieve-share  - Retrieve the custodied share for an identity
//	update-share    - Replace the custodied share for an identity
//	delete-share    - Delete the custodied share for an identity
//	audit           - List the newest custody access log entries
//
// Example workflow:
//
//  1. Generate material and keep the output somewhere safe:
//     walletctl generate > material.json
//
//  2. Register a token; the password factor is derived server-side under a
//     fresh salt that comes back in the response:
//     walletctl register --presentation-factor=... --recovery-factor=... \
//     --password=... --root-primary=... --root-privileged=...
//
//  3. Back up the recovery factor: split it, keep one share offline, and
//     hand one to the custody service behind identity verification:
//     walletctl split --secret=<recovery-factor> --parts=3 --threshold=2
//     walletctl store-share --identity=user@example.com --share=<share>
//
//  4. Recover after losing the device. Any two factors work; with the
//     password, walletctl fetches the salt and derives the factor first:
//     walletctl recover --mode=recovery+password --factor-a=<recovery> --password=...
//
//  5. Rotate the presentation factor after recovery, using the recovered
//     root keys as authorization:
//     walletctl rotate --lookup-hash=... --kind=presentation --old-factor=... \
//     --new-factor=... --root-primary=... --root-privileged=...
//
// Custody commands need a verification proof. With --proof unset walletctl
// starts a challenge and, against a development server, completes it from the
// challenge hint. Production methods deliver the code out of band; re-run
// with --proof once it arrives.
//
// The server address defaults to http://127.0.0.1:8080 and can be set with
// --server-addr or RECOVERY_SERVER_ADDR.
package main
