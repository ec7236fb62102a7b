package booking

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation       string
	HomestayID      HomestayID
	UnitID          UnitID
	ReservationCode string
	CheckIn         Date
	CheckOut        Date
	Amount          Amount
	Status          string
	Error           error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithCodeGenerator overrides booking-code generation (used in tests).
func WithCodeGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		service.codeFn = generate
	}
}
