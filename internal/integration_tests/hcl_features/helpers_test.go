package integration_tests

import (
	"context"
	"errors"
	"strings"
)

func failOn(substr string) func(context.Context, string) error {
	return func(_ context.Context, script string) error {
		if strings.Contains(script, substr) {
			return errors.New("exit status 1")
		}
		return nil
	}
}
