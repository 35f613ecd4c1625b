package main

// Exit codes
const (
	ExitSuccess         = 0 // Success
	ExitError           = 1 // General error (invalid arguments, runtime failure)
	ExitDataUnavailable = 2 // Publications table or embedding matrix missing
	ExitDataIntegrity   = 3 // Corpus files malformed or misaligned
	ExitConfigError     = 4 // Invalid configuration
	ExitNotFound        = 5 // Paper ID out of range
	ExitUnavailable     = 6 // Embedding or completion service unavailable
	ExitIndexStale      = 7 // Embedding matrix does not match the publications table
)
