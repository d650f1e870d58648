package config

// Version is the anonforum binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/anonforum/internal/config.Version=<tag>"
var Version = "dev"
