//go:build tools
// +build tools

// Package tools pins mockgen, used by go:generate in contract/.
package chat_pubsub

import (
	_ "go.uber.org/mock/mockgen"
)
