package constants

// Configuration messages
const (
	// MsgConfigLoadError is printed when the configuration cannot be loaded.
	MsgConfigLoadError = "❌ Failed to load configuration: %v\n"

	// MsgConfigInvalid heads the list of validation errors.
	MsgConfigInvalid = "❌ Configuration validation failed:\n"

	// MsgConfigValid confirms a valid configuration.
	MsgConfigValid = "✅ Configuration is valid (%d instance(s))\n"

	// MsgConfigFromEnv notes that instances came from ODOO_* variables.
	MsgConfigFromEnv = "ℹ️  %s not found, using ODOO_* environment variables\n"

	// MsgLoggerError is printed when the logger cannot be created.
	MsgLoggerError = "❌ Failed to initialize logger: %v\n"
)

// Connectivity messages
const (
	MsgPingOK     = "✅ %s: uid %d, server %s (%dms)\n"
	MsgPingFailed = "❌ %s: %v\n"
)

// Run messages
const (
	// MsgLiveRunWarning is shown before a live run starts.
	MsgLiveRunWarning = "⚠️  LIVE run on %s: records will be deleted or archived\n"

	// MsgResetConfirmPrompt asks for the instance name before a live reset.
	MsgResetConfirmPrompt = "Type the instance name (%s) to confirm the reset: "

	// MsgResetAborted is printed when confirmation does not match.
	MsgResetAborted = "reset aborted: confirmation did not match"

	// MsgReportSaved reports where a report was written.
	MsgReportSaved = "📄 Report saved to %s\n"

	// MsgRunFailed is printed for a failed instance run.
	MsgRunFailed = "❌ %s: %v\n"
)

// Serve messages
const (
	MsgServeStarting = "🚀 odoosweep starting"
	MsgServeStopping = "🛑 Shutting down"
)
