package stationproxy

import (
	"net/http"
	"strings"
)

// Descriptions the remote backend uses to explain rejected requests.
const (
	descInvalidCredentials = "Unauthorized remote start or invalid credentials!"
	descUnknownReservation = "Unknown reservation identification!"
	descUnknownEVSE        = "Unknown EVSE!"
	descUnknownStation     = "Unknown charging station!"
	descUnknownSession     = "Unknown session identification!"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeInvalidCredentials
	outcomeUnauthorized
	outcomeUnknownReservation
	outcomeUnknownEVSE
	outcomeUnknownStation
	outcomeUnknownSession
	outcomeAlreadyReserved
	outcomeAlreadyInUse
	outcomeOutOfService
	outcomeOffline
	outcomeNoEVSEsAvailable
	outcomeError
)

var conflicts = []struct {
	fragment string
	outcome  outcome
}{
	{"already reserved", outcomeAlreadyReserved},
	{"already in use", outcomeAlreadyInUse},
	{"out of service", outcomeOutOfService},
	{"offline", outcomeOffline},
	{"no evses are available", outcomeNoEVSEsAvailable},
}

// classify maps a status code and description onto an outcome.
func classify(status int, description string) outcome {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return outcomeSuccess
	case http.StatusUnauthorized:
		if description == descInvalidCredentials {
			return outcomeInvalidCredentials
		}
		return outcomeUnauthorized
	case http.StatusNotFound:
		switch description {
		case descUnknownReservation:
			return outcomeUnknownReservation
		case descUnknownEVSE:
			return outcomeUnknownEVSE
		case descUnknownStation:
			return outcomeUnknownStation
		case descUnknownSession:
			return outcomeUnknownSession
		}
	case http.StatusConflict:
		lower := strings.ToLower(description)
		for _, c := range conflicts {
			if strings.Contains(lower, c.fragment) {
				return c.outcome
			}
		}
	}
	return outcomeError
}

// errorMessage is the message of an Error result.
func errorMessage(status int, description string) string {
	if description != "" {
		return description
	}
	return http.StatusText(status)
}
