package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// session is the per-connection worker. It owns the connection exclusively:
// one framed request in, one response out, no pipelining.
type session struct {
	conn   net.Conn
	server *Server
	log    *zap.Logger
}

func (s *session) run() {
	defer s.conn.Close()

	scanner := bufio.NewScanner(s.conn)
	maxBytes := int(s.server.maxMsgBytes.Load())
	// The scanner grows to the larger of the initial buffer and max, so the
	// initial buffer must not exceed a limit configured below 64 KiB.
	bufSize := 64 * 1024
	if maxBytes < bufSize {
		bufSize = maxBytes
	}
	scanner.Buffer(make([]byte, bufSize), maxBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, err := ParseRequest(line)
		if err != nil {
			// Malformed but framed: report and keep the connection.
			s.writeError(err)
			continue
		}

		switch r := req.(type) {
		case InitRequest:
			s.handleInit(r)
		case PredictRequest:
			s.handlePredict(r)
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			// Frame overran the limit: no way to resync, drop the session.
			s.writeError(&ProtocolError{Reason: "message exceeds frame size limit"})
		} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			s.log.Debug("session read failed", zap.Error(err))
		}
	}
}

func (s *session) handleInit(req InitRequest) {
	result, err := s.server.trainer.Train(s.server.ctx, req)
	if err != nil {
		s.server.metrics.trainingFailures.Add(1)
		s.log.Warn("training failed", zap.Error(err))
		if s.server.audit != nil {
			s.server.audit.TrainingRun(0, req.TrStart, req.TrEnd, 0, 0, 0, "failed", err.Error())
		}
		s.writeError(err)
		return
	}

	s.server.metrics.trainings.Add(1)
	s.server.metrics.lastTraining.Store(result)
	if s.server.audit != nil {
		s.server.audit.TrainingRun(result.Generation, result.WindowFrom, result.WindowTo,
			result.RowsPulled, result.RowsKept, result.Duration, "ok", "")
	}
	s.write(initAck{Type: TypeAck, Msg: "Server initiation completed"})
}

func (s *session) handlePredict(req PredictRequest) {
	snapshot := s.server.registry.Current()
	if !snapshot.Ready() {
		s.server.metrics.predictionFailures.Add(1)
		s.writeError(ErrNotInitialized)
		return
	}

	key := s.server.cache.key(snapshot.Generation, req.TripDistance, req.Datetime.Hour())
	if cached, ok := s.server.cache.get(key); ok {
		s.server.metrics.cacheHits.Add(1)
		s.server.metrics.predictions.Add(1)
		s.write(predictAck{Type: TypeAck, PredFare: cached.fare, PredRevenue: cached.revenue})
		return
	}

	fare, err := snapshot.Fare.Predict(req.TripDistance)
	if err == nil {
		var tip, congestion float64
		if tip, err = snapshot.Tip.Predict(req.TripDistance); err == nil {
			congestion, err = snapshot.Congestion.Predict(req.Datetime)
		}
		if err == nil {
			predFare := congestion * fare
			predRevenue := predFare + tip
			s.server.cache.put(key, predValue{fare: predFare, revenue: predRevenue})
			s.server.metrics.predictions.Add(1)
			if s.server.audit != nil {
				s.server.audit.Prediction(time.Now(), req.TripDistance, req.Datetime.Hour(), predFare, predRevenue)
			}
			s.write(predictAck{Type: TypeAck, PredFare: predFare, PredRevenue: predRevenue})
			return
		}
	}

	s.server.metrics.predictionFailures.Add(1)
	s.writeError(err)
}

func (s *session) write(v any) {
	frame, err := encodeFrame(v)
	if err != nil {
		s.log.Error("encode response failed", zap.Error(err))
		return
	}
	if _, err := s.conn.Write(frame); err != nil {
		s.log.Debug("session write failed", zap.Error(err))
	}
}

func (s *session) writeError(err error) {
	s.write(errorResponse{Type: TypeError, Code: classify(err), Error: err.Error()})
}
