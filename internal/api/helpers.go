package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ductcast/internal/rnn"
	"github.com/samcharles93/ductcast/internal/tensor"
)

func writeBadRequest(c *echo.Context, msg, param string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param, "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeForwardError maps a failed forward to a status: kernel failures are
// 422 with the status name as code, a torn-down model is 503.
func writeForwardError(c *echo.Context, err error) error {
	if errors.Is(err, rnn.ErrClosed) {
		return writeError(c, http.StatusServiceUnavailable, "server_error", err.Error(), "", "model_closed")
	}
	if st, ok := tensor.StatusOf(err); ok {
		return writeError(c, http.StatusUnprocessableEntity, "inference_error", err.Error(), "", st.String())
	}
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func newPredictionID() string {
	return "pred_" + uuid.NewString()
}
