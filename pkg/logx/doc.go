// Package logx configures the bot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamps)
//   - File output JSON-structured
//   - Optional Telegram sink (min-level + rate limiting)
package logx
