// Package logging provides structured logging for vimbot.
//
// Entries are JSON lines produced by log/slog. Child loggers carry
// persistent attributes so every line written on behalf of a server can be
// filtered by its name:
//
//	logger, err := logging.NewLogger("/tmp/vimbot-logs", "DEBUG")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	serverLog := logger.WithServer("VIMBOT_1").WithBinary("gvim")
//	serverLog.Info("server up", "wait_ms", 412)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"server up","server":"VIMBOT_1","binary":"gvim","wait_ms":412}
//
// When no directory is configured the logger writes to stderr. Tests use
// [NopLogger].
package logging
