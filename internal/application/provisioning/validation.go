package provisioning

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// validate is shared across every request DTO in this package; go-playground
// recommends caching one *Validate per struct set rather than building one
// per call.
var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest runs req's `validate` tags and translates the first
// failing field into an InvalidInput error.
func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return platform.InvalidInput(fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag()))
		}
		return platform.InvalidInput(err.Error())
	}
	return nil
}
