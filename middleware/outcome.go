package middleware

// OutcomeKind is the classification of a single call result.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	TransportFailure
	ApplicationFailure
	DecodeFailure
	ValidationFailure
	UnknownFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case TransportFailure:
		return "transport_failure"
	case ApplicationFailure:
		return "application_failure"
	case DecodeFailure:
		return "decode_failure"
	case ValidationFailure:
		return "validation_failure"
	default:
		return "unknown_failure"
	}
}

// Outcome pairs the classification with retry eligibility.
type Outcome struct {
	Kind      OutcomeKind
	Retryable bool
	Status    int
}

// OutcomeOf classifies the result of a service call. Errors that are not
// pipeline errors, including context cancellation, are never retryable.
func OutcomeOf(resp *Response, err error) Outcome {
	if err == nil {
		out := Outcome{Kind: Success}
		if resp != nil {
			out.Status = resp.StatusCode
		}
		return out
	}

	out := Outcome{Retryable: IsRetryable(err), Status: StatusCode(err)}
	switch KindOf(err) {
	case KindTransport:
		out.Kind = TransportFailure
	case KindApplication:
		out.Kind = ApplicationFailure
	case KindDecode:
		out.Kind = DecodeFailure
	case KindValidation:
		out.Kind = ValidationFailure
	default:
		out.Kind = UnknownFailure
	}
	return out
}
