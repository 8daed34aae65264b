package kassasync

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey means no KassaCloud API key was supplied by the caller and
// none is configured for the process.
var ErrMissingAPIKey = errors.New("kassacloud api key is missing: pass apiKey or set KASSA_API_KEY")

// AuthError is a non-success response from the KassaCloud token endpoint.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("kassacloud auth error %d: %s", e.Status, e.Body)
}

// APIError is a non-2xx response from any KassaCloud resource endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kassacloud api error %d: %s", e.Status, e.Body)
}

// ValidationError is returned by the sync facade before any network call when
// a required parameter for the selected resource is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
}

// MappingSkip records one external record intentionally excluded from an
// import. Skips surface as warnings on the ImportResult, never as its error.
type MappingSkip struct {
	EntityType string
	ExternalId string
	Reason     string
}

func (s *MappingSkip) String() string {
	if s.ExternalId == "" {
		return fmt.Sprintf("%s skipped: %s", s.EntityType, s.Reason)
	}
	return fmt.Sprintf("%s %s skipped: %s", s.EntityType, s.ExternalId, s.Reason)
}
