// Package httputil provides shared HTTP response/request utilities for the
// portal's JSON handlers.
//
// Every API handler should use these helpers instead of writing raw
// http.ResponseWriter calls so that error envelopes stay consistent.
package httputil
