package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/casastay/homestay/internal/export"
	"github.com/casastay/homestay/pkg/booking"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PaymentNotifier pushes committed reservations to the payment collaborator.
type PaymentNotifier interface {
	NotifyReservation(ctx context.Context, reservation booking.Reservation) error
}

// Server exposes the booking engine over HTTP.
type Server struct {
	cfg      Config
	service  *booking.Service
	notifier PaymentNotifier
	logger   *zap.Logger
	nowFn    func() time.Time
}

// NewServer validates the configuration and wires the HTTP facade. The
// notifier may be nil when no payment collaborator is configured.
func NewServer(cfg Config, service *booking.Service, notifier PaymentNotifier, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, fmt.Errorf("booking service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		service:  service,
		notifier: notifier,
		logger:   logger,
		nowFn:    time.Now,
	}, nil
}

// Router builds the gin engine with all booking and host routes.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/homestays/:id/calendar", server.handleCalendar)
	api.GET("/homestays/:id/blocked-dates", server.handleBlockedDates)
	api.GET("/homestays/:id/availability/check", server.handleCheck)
	api.POST("/bookings", server.handleCreateBooking)
	api.GET("/bookings/:code", server.handleGetBooking)
	api.POST("/bookings/:code/cancel", server.handleCancelBooking)
	api.POST("/payments/callback", server.handlePaymentCallback)

	host := api.Group("/host")
	host.POST("/availability/block", server.handleBlock)
	host.POST("/availability/unblock", server.handleUnblock)
	host.POST("/availability/price", server.handleSetPrice)
	host.GET("/homestays/:id/occupancy.xlsx", server.handleOccupancyExport)

	return router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("booking api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) handleCalendar(ctx *gin.Context) {
	homestayID, ok := pathHomestayID(ctx)
	if !ok {
		return
	}
	span, ok := querySpan(ctx)
	if !ok {
		return
	}
	var unitFilter *booking.UnitID
	if raw := ctx.Query("unit_id"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_unit", "unit_id must be an integer"))
			return
		}
		unitID := booking.UnitID(value)
		unitFilter = &unitID
	}
	days, err := server.service.Calendar(ctx.Request.Context(), homestayID, unitFilter, span)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]dayPayload, 0, len(days))
	for _, day := range days {
		payload = append(payload, toDayPayload(day))
	}
	ctx.JSON(http.StatusOK, gin.H{"days": payload})
}

func (server *Server) handleBlockedDates(ctx *gin.Context) {
	homestayID, ok := pathHomestayID(ctx)
	if !ok {
		return
	}
	span, ok := querySpan(ctx)
	if !ok {
		return
	}
	blocked, err := server.service.BlockedDates(ctx.Request.Context(), homestayID, span)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]blockedDatePayload, 0, len(blocked))
	for _, entry := range blocked {
		payload = append(payload, blockedDatePayload{
			Date:   entry.Date.String(),
			Status: string(entry.Status),
			UnitID: int64(entry.UnitID),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"blocked_dates": payload})
}

func (server *Server) handleCheck(ctx *gin.Context) {
	homestayID, ok := pathHomestayID(ctx)
	if !ok {
		return
	}
	checkIn, err := booking.ParseDate(ctx.Query("check_in"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_date", "check_in must be YYYY-MM-DD"))
		return
	}
	checkOut, err := booking.ParseDate(ctx.Query("check_out"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_date", "check_out must be YYYY-MM-DD"))
		return
	}
	guests, err := strconv.Atoi(ctx.DefaultQuery("guests", "1"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_guests", "guests must be an integer"))
		return
	}
	input := booking.CheckStayInput{
		HomestayID: homestayID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Guests:     guests,
	}
	if raw := ctx.Query("category_id"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_category", "category_id must be an integer"))
			return
		}
		input.CategoryID = &value
	}
	if raw := ctx.Query("unit_id"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_unit", "unit_id must be an integer"))
			return
		}
		unitID := booking.UnitID(value)
		input.UnitID = &unitID
	}

	admission, err := server.service.CheckStay(ctx.Request.Context(), input)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	token, err := issueAdmissionToken(server.cfg, admission, server.nowFn())
	if err != nil {
		server.logger.Error("admission token signing failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("token_error", "could not issue admission token"))
		return
	}
	nightly := make([]quotePayload, 0, len(admission.Nightly))
	for _, quote := range admission.Nightly {
		nightly = append(nightly, quotePayload{Date: quote.Date.String(), PriceVND: quote.Price.Int64()})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"homestay_id":     int64(admission.HomestayID),
		"unit_id":         int64(admission.UnitID),
		"unit_name":       admission.UnitName,
		"check_in":        admission.CheckIn.String(),
		"check_out":       admission.CheckOut.String(),
		"guests":          admission.Guests,
		"nightly":         nightly,
		"total_vnd":       admission.Total.Int64(),
		"admission_token": token,
	})
}

func (server *Server) handleCreateBooking(ctx *gin.Context) {
	var request createBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	claims, err := parseAdmissionToken(server.cfg, request.AdmissionToken)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_token", "admission token is missing, expired, or tampered"))
		return
	}
	checkIn, err := booking.ParseDate(claims.CheckIn)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_token", "admission token carries an invalid stay"))
		return
	}
	checkOut, err := booking.ParseDate(claims.CheckOut)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_token", "admission token carries an invalid stay"))
		return
	}
	guestInfo, err := marshalGuestInfo(request.GuestInfo)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "guest_info must be a JSON object"))
		return
	}
	quotedTotal := booking.Amount(claims.TotalVND)
	reservation, err := server.service.CommitReservation(ctx.Request.Context(), booking.CommitInput{
		HomestayID:  booking.HomestayID(claims.HomestayID),
		UnitID:      booking.UnitID(claims.UnitID),
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Guests:      claims.Guests,
		Discount:    booking.Amount(request.DiscountAmount),
		QuotedTotal: &quotedTotal,
		GuestInfo:   guestInfo,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if server.notifier != nil {
		go func(committed booking.Reservation) {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = server.notifier.NotifyReservation(notifyCtx, committed)
		}(reservation)
	}
	ctx.JSON(http.StatusCreated, gin.H{"reservation": toReservationPayload(reservation)})
}

func (server *Server) handleGetBooking(ctx *gin.Context) {
	reservation, err := server.service.Reservation(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation": toReservationPayload(reservation)})
}

func (server *Server) handleCancelBooking(ctx *gin.Context) {
	code := ctx.Param("code")
	if err := server.service.Cancel(ctx.Request.Context(), code); err != nil {
		server.respondError(ctx, err)
		return
	}
	reservation, err := server.service.Reservation(ctx.Request.Context(), code)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation": toReservationPayload(reservation)})
}

func (server *Server) handlePaymentCallback(ctx *gin.Context) {
	var request paymentCallbackRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || request.BookingCode == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "booking_code and success are required"))
		return
	}
	if err := server.service.OnPaymentResult(ctx.Request.Context(), request.BookingCode, request.Success); err != nil {
		server.respondError(ctx, err)
		return
	}
	reservation, err := server.service.Reservation(ctx.Request.Context(), request.BookingCode)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation": toReservationPayload(reservation)})
}

func (server *Server) handleBlock(ctx *gin.Context) {
	server.handleAvailabilityWrite(ctx, func(requestCtx context.Context, request availabilityWriteRequest, span booking.DateRange) (int, error) {
		return server.service.BlockDates(requestCtx, booking.HomestayID(request.HomestayID), unitIDs(request.UnitIDs), span)
	})
}

func (server *Server) handleUnblock(ctx *gin.Context) {
	server.handleAvailabilityWrite(ctx, func(requestCtx context.Context, request availabilityWriteRequest, span booking.DateRange) (int, error) {
		return server.service.UnblockDates(requestCtx, booking.HomestayID(request.HomestayID), unitIDs(request.UnitIDs), span)
	})
}

func (server *Server) handleSetPrice(ctx *gin.Context) {
	server.handleAvailabilityWrite(ctx, func(requestCtx context.Context, request availabilityWriteRequest, span booking.DateRange) (int, error) {
		return server.service.SetNightlyPrice(requestCtx, booking.HomestayID(request.HomestayID), unitIDs(request.UnitIDs), span, booking.Amount(request.PriceVND))
	})
}

func (server *Server) handleAvailabilityWrite(ctx *gin.Context, write func(context.Context, availabilityWriteRequest, booking.DateRange) (int, error)) {
	var request availabilityWriteRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || request.HomestayID == 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "homestay_id, start, and end are required"))
		return
	}
	span, err := parseSpan(request.Start, request.End)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_range", "start and end must be YYYY-MM-DD with start <= end"))
		return
	}
	written, err := write(ctx.Request.Context(), request, span)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"written": written})
}

func (server *Server) handleOccupancyExport(ctx *gin.Context) {
	homestayID, ok := pathHomestayID(ctx)
	if !ok {
		return
	}
	span, ok := querySpan(ctx)
	if !ok {
		return
	}
	requestCtx := ctx.Request.Context()
	homestay, err := server.service.Homestay(requestCtx, homestayID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	units, err := server.service.Units(requestCtx, homestayID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	perUnit := make(map[booking.UnitID][]booking.DayInfo, len(units))
	for _, unit := range units {
		unitID := unit.ID
		days, err := server.service.Calendar(requestCtx, homestayID, &unitID, span)
		if err != nil {
			server.respondError(ctx, err)
			return
		}
		perUnit[unit.ID] = days
	}
	workbook, err := export.OccupancyWorkbook(homestay.Name, units, span, perUnit)
	if err != nil {
		server.logger.Error("occupancy export failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("export_error", "could not render workbook"))
		return
	}
	filename := fmt.Sprintf("occupancy_%d_%s_%s.xlsx", int64(homestayID), ctx.Query("start"), ctx.Query("end"))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, xlsxContentType, workbook)
}

// parseSpan converts the API's inclusive [start, end] range into the
// engine's half-open interval.
func parseSpan(start string, end string) (booking.DateRange, error) {
	startDate, err := booking.ParseDate(start)
	if err != nil {
		return booking.DateRange{}, err
	}
	endDate, err := booking.ParseDate(end)
	if err != nil {
		return booking.DateRange{}, err
	}
	return booking.NewSpan(startDate, endDate.AddDays(1))
}

// respondError maps domain errors onto HTTP status codes.
func (server *Server) respondError(ctx *gin.Context, err error) {
	var noAvailability booking.NoAvailabilityError
	if errors.As(err, &noAvailability) {
		body := gin.H{
			"error": gin.H{
				"code":    "no_availability",
				"message": noAvailability.Error(),
			},
		}
		if !noAvailability.Date.IsZero() {
			body["blocking_date"] = noAvailability.Date.String()
			body["blocking_status"] = string(noAvailability.Status)
		}
		ctx.JSON(http.StatusConflict, body)
		return
	}
	switch {
	case errors.Is(err, booking.ErrConflict):
		ctx.JSON(http.StatusConflict, errorResponse("conflict", "the requested dates were taken concurrently; re-check availability"))
	case errors.Is(err, booking.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "unknown homestay, unit, or booking"))
	case errors.Is(err, booking.ErrInvalidState):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_state", "the booking does not allow this transition"))
	case errors.Is(err, booking.ErrInvalidRange),
		errors.Is(err, booking.ErrInvalidDate),
		errors.Is(err, booking.ErrInvalidGuests),
		errors.Is(err, booking.ErrInvalidAmount),
		errors.Is(err, booking.ErrInvalidMetadataJSON):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	case errors.Is(err, booking.ErrPriceNotConfigured):
		server.logger.Error("pricing misconfigured", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("price_not_configured", "no nightly price is configured for these dates"))
	default:
		server.logger.Error("booking api error", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "unexpected failure"))
	}
}

func pathHomestayID(ctx *gin.Context) (booking.HomestayID, bool) {
	value, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || value <= 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_homestay", "homestay id must be a positive integer"))
		return 0, false
	}
	return booking.HomestayID(value), true
}

func querySpan(ctx *gin.Context) (booking.DateRange, bool) {
	span, err := parseSpan(ctx.Query("start"), ctx.Query("end"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_range", "start and end must be YYYY-MM-DD with start <= end"))
		return booking.DateRange{}, false
	}
	return span, true
}

func marshalGuestInfo(info map[string]any) (booking.MetadataJSON, error) {
	if info == nil {
		return booking.NewMetadataJSON("")
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return booking.MetadataJSON{}, err
	}
	return booking.NewMetadataJSON(string(raw))
}

func unitIDs(values []int64) []booking.UnitID {
	ids := make([]booking.UnitID, 0, len(values))
	for _, value := range values {
		ids = append(ids, booking.UnitID(value))
	}
	return ids
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func toDayPayload(day booking.DayInfo) dayPayload {
	payload := dayPayload{
		Date:           day.Date.String(),
		Status:         string(day.Status),
		AvailableUnits: day.AvailableUnits,
		BookedUnits:    day.BookedUnits,
		PendingUnits:   day.PendingUnits,
	}
	if day.Price != nil {
		value := day.Price.Int64()
		payload.PriceVND = &value
	}
	return payload
}

func toReservationPayload(reservation booking.Reservation) reservationPayload {
	return reservationPayload{
		Code:           reservation.Code,
		HomestayID:     int64(reservation.HomestayID),
		UnitID:         int64(reservation.UnitID),
		CheckIn:        reservation.CheckIn.String(),
		CheckOut:       reservation.CheckOut.String(),
		Guests:         reservation.Guests,
		TotalVND:       reservation.Total.Int64(),
		Status:         reservation.Status.String(),
		GuestInfo:      json.RawMessage(reservation.GuestInfo.String()),
		CreatedUnixUTC: reservation.CreatedUnixUTC,
	}
}

type createBookingRequest struct {
	AdmissionToken string         `json:"admission_token"`
	GuestInfo      map[string]any `json:"guest_info"`
	DiscountAmount int64          `json:"discount_amount"`
}

type paymentCallbackRequest struct {
	BookingCode string `json:"booking_code"`
	Success     bool   `json:"success"`
}

type availabilityWriteRequest struct {
	HomestayID int64   `json:"homestay_id"`
	UnitIDs    []int64 `json:"unit_ids"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	PriceVND   int64   `json:"price_vnd"`
}

type dayPayload struct {
	Date           string `json:"date"`
	Status         string `json:"status"`
	PriceVND       *int64 `json:"price_vnd"`
	AvailableUnits int    `json:"available_units"`
	BookedUnits    int    `json:"booked_units"`
	PendingUnits   int    `json:"pending_units"`
}

type blockedDatePayload struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	UnitID int64  `json:"unit_id"`
}

type quotePayload struct {
	Date     string `json:"date"`
	PriceVND int64  `json:"price_vnd"`
}

type reservationPayload struct {
	Code           string          `json:"code"`
	HomestayID     int64           `json:"homestay_id"`
	UnitID         int64           `json:"unit_id"`
	CheckIn        string          `json:"check_in"`
	CheckOut       string          `json:"check_out"`
	Guests         int             `json:"guests"`
	TotalVND       int64           `json:"total_vnd"`
	Status         string          `json:"status"`
	GuestInfo      json.RawMessage `json:"guest_info"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}
