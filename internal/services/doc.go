// Package services defines the shared error taxonomy for external
// collaborators (the backend upload endpoint in particular) and the
// retryability rules derived from it.
package services
