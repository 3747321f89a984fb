// Package dispatch delivers composed messages and enforces the checks
// that must pass before anything is sent.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"

	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
)

// Dispatcher delivers an outgoing message.
type Dispatcher interface {
	// Send delivers msg, embedding its threading headers.
	Send(ctx context.Context, msg *model.OutgoingMessage) error

	// Name returns the human-readable name of this dispatcher.
	Name() string
}

// PreconditionError lists the reasons a message cannot be sent.
type PreconditionError struct {
	Problems []string
}

func (e *PreconditionError) Error() string {
	return "cannot send: " + strings.Join(e.Problems, "; ")
}

// IsPreconditionError reports whether err (or any error in its chain) is
// a PreconditionError.
func IsPreconditionError(err error) bool {
	var p *PreconditionError
	return errors.As(err, &p)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

var fieldNames = map[string]string{
	"To":          "recipient",
	"Subject":     "subject",
	"Body":        "body",
	"Attachments": "attachment",
}

// Validate checks msg before sending: recipient, subject and body must
// not be blank, the recipient must be an address, and every attachment
// must exist as a regular file.
func Validate(msg *model.OutgoingMessage) error {
	var problems []string

	if err := validate.Struct(msg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validating message: %w", err)
		}
		for _, fe := range fieldErrs {
			name := fieldNames[fe.StructField()]
			if name == "" {
				name = strings.ToLower(fe.StructField())
			}
			switch fe.Tag() {
			case "email":
				problems = append(problems, fmt.Sprintf("%s %q is not an email address", name, fe.Value()))
			default:
				problems = append(problems, name+" must not be blank")
			}
		}
	}

	for _, path := range msg.Attachments {
		if strings.TrimSpace(path) == "" {
			continue
		}
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			problems = append(problems, fmt.Sprintf("attachment %s does not exist", path))
		case err != nil:
			problems = append(problems, fmt.Sprintf("attachment %s: %v", path, err))
		case info.IsDir():
			problems = append(problems, fmt.Sprintf("attachment %s is a directory", path))
		}
	}

	if len(problems) > 0 {
		return &PreconditionError{Problems: problems}
	}
	return nil
}

// NewMessageID returns a fresh Message-ID in the domain of from.
func NewMessageID(from string) string {
	domain := source.Domain(from)
	if domain == "" {
		domain = "localhost"
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
