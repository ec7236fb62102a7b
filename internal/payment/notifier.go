package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/casastay/homestay/pkg/booking"
)

// reservationNotice is the payload posted to the payment collaborator after a
// reservation is committed. The collaborator answers asynchronously through
// the payments callback endpoint.
type reservationNotice struct {
	BookingCode string `json:"booking_code"`
	HomestayID  int64  `json:"homestay_id"`
	CheckIn     string `json:"check_in"`
	CheckOut    string `json:"check_out"`
	TotalVND    int64  `json:"total_vnd"`
}

// Notifier pushes committed reservations to the payment collaborator.
type Notifier struct {
	client *resty.Client
	logger *zap.Logger
}

// NewNotifier builds a Notifier for the collaborator base URL. Transient
// failures are retried with backoff.
func NewNotifier(baseURL string, logger *zap.Logger) *Notifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Notifier{client: client, logger: logger}
}

// NotifyReservation posts the reservation to the collaborator. The booking
// flow does not depend on the outcome: a failed notification leaves the
// reservation pending so payment can be re-driven manually.
func (notifier *Notifier) NotifyReservation(ctx context.Context, reservation booking.Reservation) error {
	notice := reservationNotice{
		BookingCode: reservation.Code,
		HomestayID:  int64(reservation.HomestayID),
		CheckIn:     reservation.CheckIn.String(),
		CheckOut:    reservation.CheckOut.String(),
		TotalVND:    reservation.Total.Int64(),
	}
	response, err := notifier.client.R().
		SetContext(ctx).
		SetBody(notice).
		Post("/reservations")
	if err != nil {
		notifier.logger.Warn("payment notification failed",
			zap.String("booking_code", reservation.Code),
			zap.Error(err))
		return err
	}
	if response.IsError() {
		notifier.logger.Warn("payment collaborator rejected notification",
			zap.String("booking_code", reservation.Code),
			zap.Int("status", response.StatusCode()))
		return fmt.Errorf("payment collaborator status %d", response.StatusCode())
	}
	notifier.logger.Info("payment notification sent",
		zap.String("booking_code", reservation.Code),
		zap.Int64("total_vnd", notice.TotalVND))
	return nil
}
