package httpapi

import (
	"context"

	"go.uber.org/zap"

	"github.com/casastay/homestay/pkg/booking"
)

// zapOperationLogger forwards domain operation callbacks to zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger adapts a zap logger to the booking operation callback.
func NewOperationLogger(logger *zap.Logger) booking.OperationLogger {
	return &zapOperationLogger{logger: logger}
}

func (adapter *zapOperationLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.HomestayID != 0 {
		fields = append(fields, zap.Int64("homestay_id", int64(entry.HomestayID)))
	}
	if entry.UnitID != 0 {
		fields = append(fields, zap.Int64("unit_id", int64(entry.UnitID)))
	}
	if entry.ReservationCode != "" {
		fields = append(fields, zap.String("booking_code", entry.ReservationCode))
	}
	if !entry.CheckIn.IsZero() {
		fields = append(fields, zap.String("check_in", entry.CheckIn.String()))
	}
	if !entry.CheckOut.IsZero() {
		fields = append(fields, zap.String("check_out", entry.CheckOut.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_vnd", entry.Amount.Int64()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("booking operation failed", fields...)
		return
	}
	adapter.logger.Info("booking operation", fields...)
}
