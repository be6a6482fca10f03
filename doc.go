// Package accounts implements an authentication and account management
// backend: registration with email activation, login/refresh/logout via
// JWT pairs, and password change/reset flows.
//
// Verification tokens:
//   - Activation and reset links carry a token derived from the user id,
//     an issuance timestamp, and the current activation flag. Flipping
//     the flag invalidates every token issued under the old value, which
//     makes activation links effectively single use without a token
//     table. The Verifier owns issuance and validation; TokenCodec makes
//     the pieces URL safe.
//
// Sessions:
//   - Auther mints HS256 access/refresh pairs through TokenService and
//     consults a TokenBlacklist on refresh so logout stays permanent for
//     the remaining refresh lifetime. RedisBlacklist shares revocations
//     across instances; MemoryBlacklist covers single node setups and
//     tests.
//
// Lifecycle:
//   - UserStateMachine centralizes the pending/active transition graph
//     with ActorRef metadata, persisting through the Users repository.
//     Command handlers (RegisterUserHandler, ActivateUserHandler, the
//     password reset pair, ChangePasswordHandler) wrap each flow in a
//     transaction and surface rich errors for the HTTP layer.
package accounts
