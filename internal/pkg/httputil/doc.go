// Package httputil holds the JSON request/response helpers the API
// handlers share: one envelope for errors, one place that sets headers,
// one decode path that rejects bad bodies with a 400.
package httputil
