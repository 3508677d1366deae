// Package builtin provides built-in functions for use in apitest files.
//
// Available functions:
//   - uuid(), uuidv7(): Random and time-ordered UUIDs
//   - now(), timestamp(), timestampMs(), date(layout): Current time
//   - random(min, max): Random integer in range
//   - randomString(length), randomEmail(): Random text
//   - base64(value), base64Decode(value), sha256(value), urlEncode(value)
//   - env(name, fallback): Environment variable value
//
// Functions are invoked as {{name(args)}} inside any string literal.
package builtin
