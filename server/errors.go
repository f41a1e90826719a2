package server

import (
	"errors"

	"farecast/ml"
	"farecast/trips"
)

// Code classifies an error for the wire.
type Code string

const (
	CodeProtocol        Code = "PROTOCOL"
	CodeNotInitialized  Code = "NOT_INITIALIZED"
	CodeDataSource      Code = "DATA_SOURCE"
	CodeFit             Code = "FIT"
	CodeNotFitted       Code = "NOT_FITTED"
	CodePredictionInput Code = "PREDICTION_INPUT"
)

// ProtocolError marks a malformed or unknown client message.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

// PredictionInputError marks a well-formed PRED request whose inputs fall
// outside the model domain.
type PredictionInputError struct {
	Reason string
}

func (e *PredictionInputError) Error() string { return e.Reason }

// ErrNotInitialized is returned for PRED before any successful INIT.
var ErrNotInitialized = errors.New("server not initialized: send INIT first")

// classify maps an error to its wire code. Everything unrecognized is
// reported as a protocol-level failure rather than crashing the session.
func classify(err error) Code {
	var protoErr *ProtocolError
	var inputErr *PredictionInputError
	switch {
	case errors.As(err, &protoErr):
		return CodeProtocol
	case errors.As(err, &inputErr):
		return CodePredictionInput
	case errors.Is(err, ErrNotInitialized):
		return CodeNotInitialized
	case errors.Is(err, trips.ErrSource), errors.Is(err, trips.ErrEmptyWindow):
		return CodeDataSource
	case errors.Is(err, ml.ErrFit), errors.Is(err, ml.ErrInvalidInput):
		return CodeFit
	case errors.Is(err, ml.ErrNotFitted):
		return CodeNotFitted
	case errors.Is(err, ml.ErrUnknownHour):
		return CodePredictionInput
	default:
		return CodeProtocol
	}
}
