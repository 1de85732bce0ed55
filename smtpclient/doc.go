// Package smtpclient implements a lock-step SMTP submission client
// (RFC 5321, RFC 8314 implicit TLS).
//
// # Quick Start
//
// Use [Dial] to open an implicitly encrypted connection and greet the
// server, then authenticate, submit and quit:
//
//	s, err := smtpclient.Dial(ctx, "smtp.example.com", 465)
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Authenticate(ctx, user, pass); err != nil { ... }
//	err = s.Submit(ctx, "from@example.com", []string{"to@example.com"}, body)
//
// # Exchanges
//
// Every command is one [Exchange]: a single write of the command line
// followed by reading reply lines until the [Request] success predicate
// accepts one, the failure predicate rejects one, or the connection ends.
// Lines matched by neither are skipped. Any failure closes the transport.
//
// # Sessions
//
// A [Session] sequences exchanges through explicit states (see [State]).
// Calls made in the wrong state fail with [smtp.ErrInvalidUsage] and leave
// both the session and the wire untouched.
//
// # Authentication
//
// [Session.Authenticate] runs AUTH LOGIN. [Session.AuthSASL] drives any
// github.com/emersion/go-sasl client, such as PLAIN.
//
// # Diagnostics
//
// Sent and received lines go to a [Tracer]; by default they are logged at
// debug level. [NewWriterTracer] renders them for a terminal and [NewMetrics]
// exports per-command counters and latencies.
package smtpclient
