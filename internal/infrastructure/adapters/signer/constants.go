package signer

const (
	// SendModePayFeesSeparately makes the wallet pay forward fees on top of each message value.
	SendModePayFeesSeparately = 1
	// SendModeIgnoreErrors skips messages that fail in the action phase.
	SendModeIgnoreErrors = 2

	DefaultSendMode          = SendModePayFeesSeparately | SendModeIgnoreErrors
	DefaultRequestsPerSecond = 10
)
