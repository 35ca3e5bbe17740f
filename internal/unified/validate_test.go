package unified

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "bubbles/pkg/errors"
)

func TestValidate(t *testing.T) {
	valid := func() RawRequest {
		return RawRequest{Type: "BAN_USER", Data: map[string]interface{}{}, Source: SourceREST}
	}

	tests := []struct {
		name      string
		mutate    func(r *RawRequest)
		wantField string
	}{
		{name: "valid", mutate: func(r *RawRequest) {}},
		{name: "empty type", mutate: func(r *RawRequest) { r.Type = "" }, wantField: "type"},
		{name: "missing data", mutate: func(r *RawRequest) { r.Data = nil }, wantField: "data"},
		{name: "string data", mutate: func(r *RawRequest) { r.Data = "ban" }, wantField: "data"},
		{name: "bogus source", mutate: func(r *RawRequest) { r.Source = "bogus" }, wantField: "source"},
		{name: "missing source", mutate: func(r *RawRequest) { r.Source = "" }, wantField: "source"},
		{name: "bogus priority", mutate: func(r *RawRequest) { r.Priority = "urgent" }, wantField: "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := valid()
			tt.mutate(&raw)

			err := Validate(Normalize(raw))
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, apperrors.ErrValidation.Code, Classify(&ValidationError{Field: "type"}).Code)
	assert.Equal(t, apperrors.ErrExecutionFailed.Code, Classify(&AllStrategiesFailedError{}).Code)
	assert.Equal(t, apperrors.ErrServiceUnavailable.Code, Classify(errors.New("x")).Code)
}

func TestAllStrategiesFailedError_NamesBothMethods(t *testing.T) {
	err := &AllStrategiesFailedError{Attempts: []Attempt{
		{Method: MethodWebSocket, Err: errors.New("not connected")},
		{Method: MethodQueue, Err: errors.New("queue unhealthy")},
	}}

	assert.Contains(t, err.Error(), "websocket: not connected")
	assert.Contains(t, err.Error(), "queue: queue unhealthy")
}
