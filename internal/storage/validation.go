// Package storage provides the document persistence layer for the hours application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrInvalidCollection = errors.New("invalid collection name")
	ErrInvalidRecord     = errors.New("invalid record")
)

var (
	collectionName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

	validate     *validator.Validate
	validateOnce sync.Once
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateCollection ensures a collection name is safe to use as a file name or key.
func validateCollection(collection string) error {
	if !collectionName.MatchString(collection) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	return nil
}

// ValidateRecord checks a persisted record against its struct validation tags.
func ValidateRecord(record any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(record); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}
