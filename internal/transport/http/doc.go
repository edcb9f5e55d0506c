// Package http holds the chi HTTP handlers for the vquant service API.
// Each handler owns one resource, exposes its routes via Routes(), and
// renders errors as RFC 7807 problem details.
package http
