package booking

const (
	operationCheck    = "check"
	operationCommit   = "commit"
	operationBlock    = "block"
	operationUnblock  = "unblock"
	operationSetPrice = "set_price"
	operationPayment  = "payment"
	operationCancel   = "cancel"
	operationComplete = "complete"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	bookingCodePrefix = "BK"
	blockCodePrefix   = "BLOCK"
)
