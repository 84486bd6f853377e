// Package auth resolves marketplace identities into role scoped sessions
// and gates routes by account type.
//
// Sign in:
//   - RoleResolver looks the identifier up across ordered CredentialSources,
//     reports unverified accounts before checking the password, and issues
//     either a full session for the account type or a short lived pending
//     token for users who still have to pick a role.
//   - CompleteRoleSelection writes the chosen type once through an
//     AccountTypeAssigner and opens the full session.
//
// Sessions:
//   - Every account type has its own cookie in a CookieNamespace. Issuing a
//     session clears every other cookie of the namespace so a browser never
//     holds two roles at once.
//   - Tokens are JWTs signed with process wide KeyMaterial. RS256 material
//     publishes its public half as a JWKS document, so services that only
//     guard routes can verify with a RemoteValidator.
//
// Guards:
//   - Guards.Require reads only the cookie of its own account type, then the
//     Authorization header. Programmatic clients are rejected with 403 JSON,
//     browsers are redirected and the rejected route is remembered.
package auth
