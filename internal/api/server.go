// Package api serves a loaded model over HTTP. It is a shadow-mode harness
// for feeding recorded or live signals to the model off-vehicle; the
// in-vehicle path calls the engine directly.
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ductcast/internal/engine"
	"github.com/samcharles93/ductcast/internal/hostio"
	"github.com/samcharles93/ductcast/internal/logger"
)

// Model is what the server drives. *engine.Handle satisfies it.
type Model interface {
	Forward(out, in []float32) error
	Reset()
	Info() engine.Info
}

type Server struct {
	// mu serializes every call into model: a model's forward mutates its
	// scratch and recurrent state in place.
	mu       sync.Mutex
	model    Model
	features hostio.Order
	outputs  hostio.Order
	log      logger.Logger
	clock    func() time.Time
	newID    func() string
}

// NewServer wraps m. features and outputs name the vector elements and must
// match the model's widths.
func NewServer(m Model, features, outputs hostio.Order, log logger.Logger) (*Server, error) {
	info := m.Info()
	if len(features) != info.InputWidth {
		return nil, fmt.Errorf("api: %d feature names for input width %d", len(features), info.InputWidth)
	}
	if len(outputs) != info.OutputWidth {
		return nil, fmt.Errorf("api: %d output names for output width %d", len(outputs), info.OutputWidth)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		model:    m,
		features: features,
		outputs:  outputs,
		log:      log,
		clock:    time.Now,
		newID:    newPredictionID,
	}, nil
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/predict", s.handlePredict)
	e.POST("/v1/reset", s.handleReset)
	e.GET("/v1/model", s.handleModel)
	e.GET("/healthz", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) handlePredict(c *echo.Context) error {
	req, err := decodeJSON[PredictRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}
	in := make([]float32, len(s.features))
	switch {
	case req.Features != nil && req.Vector != nil:
		return writeBadRequest(c, "features and vector are mutually exclusive", "")
	case req.Features != nil:
		if err := s.features.Vector(in, req.Features); err != nil {
			return writeBadRequest(c, err.Error(), "features")
		}
	case req.Vector != nil:
		if len(req.Vector) != len(in) {
			return writeBadRequest(c, fmt.Sprintf("vector has %d values, model takes %d", len(req.Vector), len(in)), "vector")
		}
		copy(in, req.Vector)
	default:
		return writeBadRequest(c, "one of features or vector is required", "")
	}

	out := make([]float32, len(s.outputs))
	s.mu.Lock()
	if req.Reset {
		s.model.Reset()
	}
	err = s.model.Forward(out, in)
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("forward failed", "error", err)
		return writeForwardError(c, err)
	}

	return c.JSON(http.StatusOK, PredictResponse{
		ID:      s.newID(),
		Object:  "prediction",
		Created: s.clock().Unix(),
		Outputs: s.outputs.Named(out),
		Vector:  out,
	})
}

func (s *Server) handleReset(c *echo.Context) error {
	s.mu.Lock()
	s.model.Reset()
	s.mu.Unlock()
	s.log.Info("recurrent state reset")
	return c.JSON(http.StatusOK, ResetResponse{Object: "reset", Reset: true})
}

func (s *Server) handleModel(c *echo.Context) error {
	s.mu.Lock()
	info := s.model.Info()
	s.mu.Unlock()
	return c.JSON(http.StatusOK, ModelResponse{
		Object:   "model",
		Features: s.features,
		Outputs:  s.outputs,
		Info:     info,
	})
}
