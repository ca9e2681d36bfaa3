package services

import (
	"bytes"
	"fmt"
	"io"
)

// RegistrationError indicates a rendezvous registration was refused.
type RegistrationError struct {
	Status int
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("rendezvous registration refused with status %d", e.Status)
}

func jsonBody(b []byte) io.Reader {
	return bytes.NewReader(b)
}
