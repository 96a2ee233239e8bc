package jamf

import (
	"net/http"
)

// EndpointKind identifies the Jamf endpoint a response came from.
type EndpointKind uint8

const (
	EndpointAuth EndpointKind = iota
	EndpointLookup
	EndpointUpdate
	EndpointConfirm
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointAuth:
		return "auth"
	case EndpointLookup:
		return "lookup"
	case EndpointUpdate:
		return "update"
	case EndpointConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// Outcome is the result of classifying a response.
type Outcome uint8

const (
	OK Outcome = iota
	NotFoundSkip
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case NotFoundSkip:
		return "not-found-skip"
	default:
		return "fatal"
	}
}

// Classify maps a status code from an endpoint to an outcome.
//
// A 404 is only skippable on lookups, the local list may name devices
// that are no longer enrolled. A 404 on a patch of a resolved id is fatal.
func Classify(statusCode int, kind EndpointKind) Outcome {
	switch statusCode {
	case http.StatusOK, http.StatusCreated:
		return OK
	case http.StatusNotFound:
		if kind == EndpointLookup {
			return NotFoundSkip
		}

		return Fatal
	default:
		return Fatal
	}
}
