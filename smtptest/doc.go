// Package smtptest provides a scripted SMTP server for tests.
//
// A [Script] lists the lines a client is expected to send and the canned
// replies to each. Every connection to a [Server] plays the script from
// the start:
//
//	srv := smtptest.NewServer(smtptest.Script{
//	    Greeting: []string{"220 mx.test ESMTP"},
//	    Steps: []smtptest.Step{
//	        {Expect: "EHLO localhost", Replies: []string{"250 mx.test"}},
//	        {Expect: "QUIT", Replies: []string{"221 bye"}, Hangup: true},
//	    },
//	})
//	addr, err := srv.Start()
//
// The server records every command line in [Server.Commands] and every
// message body in [Server.Messages]. A command that differs from the
// expected one is answered with 503, recorded in [Server.Err], and ends
// the connection.
package smtptest
