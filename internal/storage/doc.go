package storage

// Package storage is the bot's persistence layer.
//
// It holds:
//   - Active reminder jobs and their archive (with terminal reasons)
//   - The lifecycle audit log
//   - Per-chat settings, registered delivery chats and admin usernames
