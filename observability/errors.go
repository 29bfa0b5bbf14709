package observability

import "errors"

// Configuration errors returned by Config.Validate and NewProvider.
var (
	ErrNilConfig             = errors.New("observability: nil config")
	ErrMissingServiceName    = errors.New("observability: service.name is required when enabled")
	ErrInvalidSampleRate     = errors.New("observability: trace.sample_rate must be within [0, 1]")
	ErrInvalidProtocol       = errors.New("observability: protocol must be http or grpc")
	ErrInvalidEndpointFormat = errors.New("observability: endpoint does not match protocol")
)
