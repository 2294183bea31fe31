package api

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is shared across decodes; validator instances cache struct
// metadata and are safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeOne parses and validates a single entity payload. This is the only
// place API payloads are validated; everything above the boundary trusts
// the decoded value.
func decodeOne[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("api: decode %T: %w", v, err)
	}
	if err := validate.Struct(&v); err != nil {
		return v, fmt.Errorf("api: invalid %T payload: %w", v, err)
	}
	return v, nil
}

// decodeList parses and validates a collection payload.
func decodeList[T any](body []byte) ([]T, error) {
	var vs []T
	if err := json.Unmarshal(body, &vs); err != nil {
		var zero T
		return nil, fmt.Errorf("api: decode []%T: %w", zero, err)
	}
	for i := range vs {
		if err := validate.Struct(&vs[i]); err != nil {
			return nil, fmt.Errorf("api: invalid %T payload at index %d: %w", vs[i], i, err)
		}
	}
	return vs, nil
}

// validatePayload checks an outbound write payload before it is sent.
func validatePayload(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("api: invalid request payload: %w", err)
	}
	return nil
}
