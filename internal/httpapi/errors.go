package httpapi

import "fmt"

func errUnknownCapability(s string) error {
	return fmt.Errorf("httpapi: unknown capability %q", s)
}

func errUnknownProvider(s string) error {
	return fmt.Errorf("httpapi: unknown provider %q", s)
}
