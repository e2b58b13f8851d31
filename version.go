package flujos

// Version is the release of this build. Overridden at link time with
// -ldflags "-X github.com/aretw0/flujos.Version=...".
var Version = "0.1.0-dev"
