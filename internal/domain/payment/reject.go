package payment

import "strings"

// RejectReason is the code attached to a refused bill. Local codes are
// decided by the orchestrator before the bill ever reaches the acceptor;
// adapter codes come back from the hardware.
type RejectReason string

const (
	// Local, pre-forward rejections.
	RejectAlreadyPaid  RejectReason = "already_paid"
	RejectNoBalanceDue RejectReason = "no_balance_due"
	RejectOverpayment  RejectReason = "overpayment"

	// Adapter-reported rejections.
	RejectNotConnected         RejectReason = "not_connected"
	RejectIntakeDisabled       RejectReason = "intake_disabled"
	RejectManualInsertDisabled RejectReason = "manual_insert_disabled"
	RejectUnsupportedDenom     RejectReason = "unsupported_denomination"
	RejectInvalidAmount        RejectReason = "invalid_amount"
	RejectRejected             RejectReason = "rejected"
)

var rejectText = map[RejectReason]string{
	RejectAlreadyPaid:          "Payment is already complete.",
	RejectNoBalanceDue:         "No balance is due.",
	RejectOverpayment:          "That bill is more than the remaining amount. Please use a smaller bill.",
	RejectNotConnected:         "The bill acceptor is not available. Please pay by card.",
	RejectIntakeDisabled:       "The bill acceptor is not accepting bills right now.",
	RejectManualInsertDisabled: "Bill insertion is disabled on this kiosk.",
	RejectUnsupportedDenom:     "That bill is not accepted. Please use another denomination.",
	RejectInvalidAmount:        "That bill could not be read. Please try again.",
	RejectRejected:             "The bill was rejected. Please try again or use another bill.",
}

const faultText = "The bill acceptor reported a hardware fault. Please pay by card."

// UserText maps a reject code to the fixed sentence shown on screen.
// Hardware fault codes of the shape fault_0x?? / error_0x?? share one
// sentence; anything unrecognized maps to an empty string so raw codes never
// leak to the customer.
func (r RejectReason) UserText() string {
	if text, ok := rejectText[r]; ok {
		return text
	}
	code := string(r)
	if strings.HasPrefix(code, "fault_0x") || strings.HasPrefix(code, "error_0x") {
		return faultText
	}
	return ""
}

// Local reports whether the code is an orchestrator-level rejection that
// never reached the acceptor.
func (r RejectReason) Local() bool {
	switch r {
	case RejectAlreadyPaid, RejectNoBalanceDue, RejectOverpayment:
		return true
	}
	return false
}
