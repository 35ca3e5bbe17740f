package backend

import (
	"context"
	"errors"

	"bubbles/internal/commands"
	"bubbles/internal/unified"
)

var ErrDirectUnavailable = errors.New("direct execution is not available")

// Direct runs commands in-process against the Discord API.
type Direct struct {
	factory *commands.Factory
}

func NewDirect(factory *commands.Factory) *Direct {
	return &Direct{factory: factory}
}

func (d *Direct) Method() unified.Method { return unified.MethodDirect }

// Execute always returns the command Result as data. A command that fails
// is still a successful execution of the backend.
func (d *Direct) Execute(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
	if d.factory == nil {
		return nil, ErrDirectUnavailable
	}
	return commands.ExecuteRequest(ctx, d.factory, req), nil
}

func (d *Direct) Probe(context.Context) error {
	if d.factory == nil || !d.factory.Ready() {
		return ErrDirectUnavailable
	}
	return nil
}
