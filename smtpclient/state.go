package smtpclient

// State is the position of a Session in the submission conversation.
type State int

const (
	StateDisconnected  State = iota // No greeting exchanged yet.
	StateGreeted                    // EHLO answered; ready to authenticate or submit.
	StateAuthenticated              // AUTH completed.
	StateEnvelopeOpen               // MAIL FROM accepted; recipients being added.
	StateDataSent                   // Message accepted for delivery.
	StateClosed                     // QUIT sent or a fatal error occurred.
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateGreeted:
		return "greeted"
	case StateAuthenticated:
		return "authenticated"
	case StateEnvelopeOpen:
		return "envelope-open"
	case StateDataSent:
		return "data-sent"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
