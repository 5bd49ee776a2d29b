package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Ingestion request defaults.
const (
	DefaultMaxPages = 50
	DefaultMaxDepth = 3
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New()

// IngestRequest asks for one ingestion job. Exactly one of URL and Files
// must be set.
type IngestRequest struct {
	URL      string   `json:"url,omitempty" validate:"required_without=Files,excluded_with=Files,max=2048"`
	Files    []string `json:"files,omitempty" validate:"required_without=URL,dive,required"`
	MaxPages int      `json:"max_pages,omitempty" validate:"omitempty,min=1,max=500"`
	MaxDepth int      `json:"max_depth,omitempty" validate:"omitempty,min=1,max=10"`
	Reset    bool     `json:"reset,omitempty"`
	ClientID string   `json:"client_id,omitempty" validate:"omitempty,max=128"`
}

// withDefaults fills unset limits.
func (r IngestRequest) withDefaults() IngestRequest {
	if r.MaxPages == 0 {
		r.MaxPages = DefaultMaxPages
	}
	if r.MaxDepth == 0 {
		r.MaxDepth = DefaultMaxDepth
	}
	return r
}

// Validate checks field bounds and that exactly one source is given.
func (r IngestRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if (r.URL == "") == (len(r.Files) == 0) {
		return fmt.Errorf("%w: exactly one of url or files is required", ErrInvalidRequest)
	}
	return nil
}

// validateStruct runs the struct tags and flattens field errors into one
// readable message.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_without":
		return fmt.Sprintf("%s is required when %s is empty", field, fe.Param())
	case "excluded_with":
		return fmt.Sprintf("%s cannot be combined with %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s validation failed on '%s' tag", field, fe.Tag())
	}
}
