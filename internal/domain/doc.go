// Package domain defines the entity types of biblemarker.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import domain; domain imports nothing internal.
//
// Key design constraints:
//   - Optional text fields use "" for absent, never whitespace
//   - Stored text is trimmed and NFC normalized (see NormalizeText)
//   - Timestamps are UTC
//   - All JSON tags use snake_case
package domain
