//go:build tools

// Package chathub pins tool dependencies invoked through go generate
// (mockgen) so that go.mod and go.sum track them.
package chathub

import (
	_ "go.uber.org/mock/mockgen"
)
