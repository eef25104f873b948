package provider

import (
	"errors"
	"fmt"
	"net/http"

	"chat-task-bridge/internal/domain"
)

// HTTPError is a non-2xx answer from the provider after retries.
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider %s: http %d: %s", e.Op, e.Status, e.Body)
}

// Is lets errors.Is(err, domain.ErrProviderTaskNotFound) match a 404.
func (e *HTTPError) Is(target error) bool {
	return target == domain.ErrProviderTaskNotFound && e.Status == http.StatusNotFound
}

func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrProviderTaskNotFound)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
