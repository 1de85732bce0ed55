// Package smtp provides the shared vocabulary of an SMTP submission client
// (RFC 5321).
//
// This package contains reply codes, status predicates, the error taxonomy
// of a command/reply exchange, enhanced status codes, mailbox parsing and
// credential encoding. It is used by [github.com/alexisbouchez/smtpsend/smtpclient]
// and [github.com/alexisbouchez/smtpsend/smtptest].
//
// # Reply Codes and Predicates
//
// [ReplyCode] constants cover the codes a submission conversation uses.
// A [Predicate] maps a code to a boolean; [Is], [AtLeast], [Any] and [Not]
// build and combine them. [DefaultErrorThreshold] (500) is the boundary a
// standard exchange treats as a hard failure.
//
// # Errors
//
// [ErrProtocolViolation], [ErrConnectionClosed] and [ErrInvalidUsage] are
// matched with errors.Is. A reply the server sent instead of the expected
// one is an [*SMTPError], matched with errors.As.
//
// # Addresses and Credentials
//
// [ParseAddress] validates sender and recipient addresses before they are
// put on the wire. [EncodeCredential] produces the base64 text sent during
// AUTH LOGIN.
package smtp
