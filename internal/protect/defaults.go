// Package protect decides which workspace files sub-agents may not
// modify, even inside the workspace-write sandbox.
package protect

// DefaultPatterns are glob patterns, relative to the workspace root,
// that no sub-agent may write.
var DefaultPatterns = []string{
	"**/.git/**",
	"**/.helloagents/**",
	"**/.ssh/**",
	"**/secrets/**",
	"**/credentials/**",
	"**/.env",
	"**/.env.*",
}

// DefaultFileTypes are extensions of key and certificate material.
var DefaultFileTypes = []string{
	".pem",
	".key",
	".p12",
	".pfx",
	".jks",
	".keystore",
}
