// Package httputil holds the JSON request/response helpers shared by the
// API handlers, keeping the envelope shape and error logging uniform
// across endpoints.
package httputil
