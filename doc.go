// Package passkey implements the passwordless authentication core of a
// subscription panel: a challenge-response, public-key ceremony in the
// WebAuthn style, built without a ceremony library.
//
// The package is the public surface. It exposes [Engine], [Builder],
// [Config], the ceremony result types, and the sentinel error taxonomy.
// The wire-format core — the restricted CBOR decoder, the COSE key
// importer, and the authenticator-data parser — lives under internal/ and
// is never exported.
//
// # Ceremony flow
//
// A caller begins a ceremony with [Engine.BeginRegistration] or
// [Engine.BeginAuthentication], which mint a single-use challenge and
// return the option payload the client-side ceremony needs. The client
// completes the ceremony out-of-band and submits the result to
// [Engine.FinishRegistration] or [Engine.FinishAuthentication], which
// consume the challenge exactly once — success or failure — and validate
// every field before anything is persisted. Consuming on every outcome is
// what closes replay of a captured response.
//
// # Architecture boundaries
//
//   - Credential and user persistence belong to the caller, behind
//     [CredentialStore] and [UserProvider].
//   - Challenges live in Redis with an in-process fallback; the Redis
//     client is injected through [Builder.WithRedis].
//   - Attestation statements are not verified ("none" attestation); the
//     module carries no certificate-chain or metadata-service logic.
//
// Engine methods are safe for concurrent use after [Builder.Build].
package passkey
