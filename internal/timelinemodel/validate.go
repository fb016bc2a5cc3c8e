package timelinemodel

import "github.com/go-playground/validator/v10"

// validate is the shared struct-tag validator instance, following the
// teacher's models.go pattern of one package-level validator reused across
// every Validate() method rather than constructed per call.
var validate = validator.New()

// Validate checks the struct tags on MessageMeta (currently just Name's
// required tag). Resolution/Authentication are plain enums with no tags to
// violate.
func (m *MessageMeta) Validate() error {
	return validate.Struct(m)
}
