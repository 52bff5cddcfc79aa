package main

// Exit codes returned by the CLI.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (invalid settings, bad paths)
	ExitDataError   = 3 // Data error (unsupported format, empty document)
	ExitStoreError  = 4 // Vector store unreachable or misconfigured
)
