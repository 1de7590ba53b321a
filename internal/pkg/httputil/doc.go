// Package httputil holds the JSON response helpers shared by API handlers so
// every endpoint answers with the same envelope and error shape.
package httputil
