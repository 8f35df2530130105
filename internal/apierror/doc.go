// Package apierror provides inspection helpers for responses and errors returned
// by the search API. It centralizes the diagnostic-message matching the client
// relies on, such as detecting an expired session inside a status response or
// the empty-result sentinel of the export endpoints.
package apierror
