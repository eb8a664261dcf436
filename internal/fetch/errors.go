package fetch

import "fmt"

// UnreachableError means every attempt failed with a transport error or a 5xx status.
type UnreachableError struct {
	URL      string
	Attempts int
	Status   int
	Err      error
}

func (e *UnreachableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unreachable after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s unreachable after %d attempt(s): status %d", e.URL, e.Attempts, e.Status)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// StatusError is a 4xx response. These are never retried.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.Status, e.Body)
}
