package registry

import (
	"github.com/dukex/jobflow/pkg/operators/command"
	"github.com/dukex/jobflow/pkg/operators/httprequest"
	"github.com/dukex/jobflow/pkg/operators/log"
)

// RegisterDefaultOperators registers all built-in operators with the registry.
func (r *Registry) RegisterDefaultOperators() error {
	for _, op := range []Operator{
		log.New(),
		command.NewExec(),
		command.NewScript(),
		httprequest.New(),
	} {
		if err := r.Register(op); err != nil {
			return err
		}
	}

	return nil
}
