package api

import "github.com/samcharles93/ductcast/internal/engine"

// PredictRequest carries one control tick. Exactly one of Features and
// Vector is set.
type PredictRequest struct {
	Features map[string]float32 `json:"features,omitempty"`
	Vector   []float32          `json:"vector,omitempty"`
	// Reset clears recurrent state before this tick.
	Reset bool `json:"reset,omitempty"`
}

type PredictResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Outputs map[string]float32 `json:"outputs"`
	Vector  []float32          `json:"vector"`
}

type ResetResponse struct {
	Object string `json:"object"`
	Reset  bool   `json:"reset"`
}

type ModelResponse struct {
	Object   string   `json:"object"`
	Features []string `json:"features"`
	Outputs  []string `json:"outputs"`
	engine.Info
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
