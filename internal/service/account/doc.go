// Package account implements sign-up, sign-in and sign-out for portal users.
//
// Sign-up validates the registration, rejects an email, phone or PAN that
// another profile already uses, registers the user with the auth provider
// and writes the profile row. Sign-in exchanges credentials for an
// AuthSession that the HTTP layer stores server-side.
//
// The service layer contains pure business logic and depends on the
// interfaces defined in repository.go. It never imports net/http or
// database/sql directly.
package account
