// Package generator holds helpers shared by answer generators.
package generator

import (
	"errors"
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

// Failed wraps cause in domain.ErrGenerationFailed unless it already is one.
func Failed(provider string, cause error) error {
	if errors.Is(cause, domain.ErrGenerationFailed) {
		return cause
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrGenerationFailed, provider, cause)
}

// Check rejects blank model output. The text itself is returned unmodified.
func Check(provider, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", Failed(provider, errors.New("empty response"))
	}
	return text, nil
}
