package testlog

import (
	"testing"

	"wanotify/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
}
