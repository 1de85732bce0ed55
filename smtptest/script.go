package smtptest

import smtp "github.com/alexisbouchez/smtpsend"

// Step is one turn of a scripted conversation.
type Step struct {
	// Expect is the command line the client must send, without CRLF.
	// Empty accepts any line.
	Expect string

	// Body makes the step read a dot-terminated message body instead of a
	// command line. Expect is ignored.
	Body bool

	// Replies are written, CRLF-terminated, in a single write once the
	// command or body has been read.
	Replies []string

	// Reject, when set, is written in its wire form in place of Replies.
	Reject *smtp.SMTPError

	// Hangup closes the connection after Replies are written.
	Hangup bool
}

// Script is the whole conversation a Server plays on each connection.
type Script struct {
	// Greeting is written as soon as the connection opens.
	Greeting []string
	Steps    []Step
}

// Submission returns the steps of a successful submission to rcpts: MAIL,
// one RCPT per recipient, DATA, the body and QUIT.
func Submission(from string, rcpts ...string) []Step {
	steps := []Step{{Expect: "MAIL FROM:<" + from + ">", Replies: []string{"250 2.1.0 OK"}}}
	for _, r := range rcpts {
		steps = append(steps, Step{Expect: "RCPT TO:<" + r + ">", Replies: []string{"250 2.1.5 OK"}})
	}
	return append(steps,
		Step{Expect: "DATA", Replies: []string{"354 Start mail input; end with <CRLF>.<CRLF>"}},
		Step{Body: true, Replies: []string{"250 2.0.0 Queued"}},
		Step{Expect: "QUIT", Replies: []string{"221 2.0.0 Bye"}, Hangup: true},
	)
}
