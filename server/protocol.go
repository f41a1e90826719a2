// Package server implements the stream protocol, sessions and the acceptor.
package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"farecast/trips"
)

// Message types on the wire. Requests and responses are single JSON objects,
// one per line, discriminated by the top-level "type" field.
const (
	TypeInit    = "INIT"
	TypePredict = "PRED"
	TypeAck     = "ACK"
	TypeError   = "ERROR"
)

// Request is a parsed client message: InitRequest or PredictRequest.
type Request interface {
	isRequest()
}

// InitRequest asks the server to train on a window [TrStart, TrEnd) pulled
// from the given data source.
type InitRequest struct {
	Conn    trips.ConnParams
	TrStart time.Time
	TrEnd   time.Time
}

func (InitRequest) isRequest() {}

// PredictRequest asks for a fare/revenue estimate.
type PredictRequest struct {
	TripDistance float64
	Datetime     time.Time
}

func (PredictRequest) isRequest() {}

type wireInit struct {
	DBName     string `json:"db_name"`
	DBHost     string `json:"db_host"`
	DBPort     int    `json:"db_port"`
	DBUsername string `json:"db_username"`
	DBPassword string `json:"db_password"`
	TrStart    string `json:"tr_start"`
	TrEnd      string `json:"tr_end"`
}

type wirePredict struct {
	TripDistance float64 `json:"trip_distance"`
	Datetime     string  `json:"datetime"`
}

type envelope struct {
	Type string `json:"type"`
}

// timeLayouts are the accepted timestamp formats, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseRequest decodes one framed message into its tagged variant.
func ParseRequest(line []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, &ProtocolError{Reason: "malformed message: not a JSON object"}
	}

	switch env.Type {
	case TypeInit:
		var w wireInit
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, &ProtocolError{Reason: "malformed INIT payload"}
		}
		return parseInit(w)
	case TypePredict:
		var w wirePredict
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, &ProtocolError{Reason: "malformed PRED payload"}
		}
		return parsePredict(w)
	case "":
		return nil, &ProtocolError{Reason: "missing message type"}
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", env.Type)}
	}
}

func parseInit(w wireInit) (Request, error) {
	if w.DBHost == "" || w.DBName == "" {
		return nil, &ProtocolError{Reason: "INIT requires db_host and db_name"}
	}
	start, err := parseTimestamp(w.TrStart)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("bad tr_start: %v", err)}
	}
	end, err := parseTimestamp(w.TrEnd)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("bad tr_end: %v", err)}
	}
	if !start.Before(end) {
		return nil, &ProtocolError{Reason: "training window is empty: tr_start must precede tr_end"}
	}
	return InitRequest{
		Conn: trips.ConnParams{
			Host:     w.DBHost,
			Port:     w.DBPort,
			User:     w.DBUsername,
			Password: w.DBPassword,
			Name:     w.DBName,
		},
		TrStart: start,
		TrEnd:   end,
	}, nil
}

func parsePredict(w wirePredict) (Request, error) {
	if w.TripDistance <= 0 {
		return nil, &PredictionInputError{Reason: "trip_distance must be positive"}
	}
	at, err := parseTimestamp(w.Datetime)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("bad datetime: %v", err)}
	}
	return PredictRequest{TripDistance: w.TripDistance, Datetime: at}, nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// initAck is the INIT success response.
type initAck struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// predictAck is the PRED success response.
type predictAck struct {
	Type        string  `json:"type"`
	PredFare    float64 `json:"pred_fare"`
	PredRevenue float64 `json:"pred_revenue"`
}

// errorResponse carries the error class and a human-readable message.
type errorResponse struct {
	Type  string `json:"type"`
	Code  Code   `json:"code"`
	Error string `json:"error"`
}

func encodeFrame(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(payload, '\n'), nil
}
