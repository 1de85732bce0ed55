package smtp

// ReplyCode represents the numeric status code at the start of an SMTP
// reply line (RFC 5321 §4.2). Codes are parsed from the leading digits of
// a line, so a ReplyCode is any non-negative integer, not only the
// three-digit values listed below.
type ReplyCode int

// Reply code classes (RFC 5321 §4.2.1).
const (
	ClassPositiveCompletion   = 2 // 2xx
	ClassPositiveIntermediate = 3 // 3xx
	ClassTransientNegative    = 4 // 4xx
	ClassPermanentNegative    = 5 // 5xx
)

// Standard SMTP reply codes (RFC 5321 §4.2.2, §4.2.3).
const (
	// 2xx Positive completion.
	ReplyServiceReady   ReplyCode = 220
	ReplyServiceClosing ReplyCode = 221
	ReplyAuthOK         ReplyCode = 235
	ReplyOK             ReplyCode = 250
	ReplyUserNotLocal   ReplyCode = 251

	// 3xx Positive intermediate.
	ReplyAuthContinue   ReplyCode = 334
	ReplyStartMailInput ReplyCode = 354

	// 4xx Transient negative completion.
	ReplyServiceNotAvailable ReplyCode = 421
	ReplyMailboxBusy         ReplyCode = 450
	ReplyLocalError          ReplyCode = 451
	ReplyInsufficientStorage ReplyCode = 452
	ReplyTempAuthFailure     ReplyCode = 454

	// 5xx Permanent negative completion.
	ReplySyntaxError       ReplyCode = 500
	ReplySyntaxParamError  ReplyCode = 501
	ReplyCommandNotImpl    ReplyCode = 502
	ReplyBadSequence       ReplyCode = 503
	ReplyAuthRequired      ReplyCode = 530
	ReplyAuthFailed        ReplyCode = 535
	ReplyMailboxNotFound   ReplyCode = 550
	ReplyExceededStorage   ReplyCode = 552
	ReplyMailboxNameError  ReplyCode = 553
	ReplyTransactionFailed ReplyCode = 554
)

// DefaultErrorThreshold is the lowest reply code treated as a hard failure
// by a standard exchange. 4xx replies that are not the expected code are
// skipped rather than aborting the exchange.
const DefaultErrorThreshold ReplyCode = ReplySyntaxError

// Class returns the reply class (first digit of a three-digit code).
func (c ReplyCode) Class() int {
	return int(c) / 100
}

// IsTransient returns true for 4xx reply codes (temporary failures).
func (c ReplyCode) IsTransient() bool {
	return c.Class() == ClassTransientNegative
}

// IsPermanent returns true for 5xx reply codes (permanent failures).
func (c ReplyCode) IsPermanent() bool {
	return c.Class() == ClassPermanentNegative
}
