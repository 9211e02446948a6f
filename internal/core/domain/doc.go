// Package domain defines the core domain models for dinegate.
//
// Domain models are pure value objects without any IO dependencies.
// The client session is modelled as a triple of identity, bearer
// credential and expiry instant; the types here never mutate shared
// state, that is left to the credential store.
package domain
