package models

// SSHResult holds the result of a remote command.
type SSHResult struct {
	CommandRun bool
	Output     string
	Error      error
}
