package main

import "github.com/helloagents/rlm/internal/version"

// Version returns the current version
func Version() string {
	return version.Full()
}
