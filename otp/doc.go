// Package otp issues and verifies one-time codes stored in Redis.
//
// Codes are keyed by purpose and identifier under {prefix}:otp:{purpose}:{id}.
// A correct code is consumed on first use. Each wrong guess is counted, and the
// record is deleted once MaxAttempts wrong guesses have been made. NotFound
// must be presented to end users exactly like Invalid so that callers cannot
// learn which identifiers have outstanding codes.
package otp
