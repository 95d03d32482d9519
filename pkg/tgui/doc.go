// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders and callback data helpers
//   - A message builder that is safe by default for ParseMode="HTML"
//   - Rune-aware splitting for Telegram's message length limit
package tgui
