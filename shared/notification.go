package shared

// RecordNotification delivers one record for an outstanding page request.
type RecordNotification struct {
	CorrelationID uint64
	Record        Record
}

// PageDoneNotification marks a page as fully delivered. The gateway guarantees
// all record notifications for the correlation id precede it.
type PageDoneNotification struct {
	CorrelationID uint64
}

// GatewayErrorNotification reports a gateway error tied to a page request.
type GatewayErrorNotification struct {
	CorrelationID uint64
	Code          int
	Message       string
}

// GatewayNotifier defines the notification surface the gateway delivers
// asynchronous results to.
type GatewayNotifier interface {
	// SendRecord relays the provided record notification for processing.
	SendRecord(notification RecordNotification)
	// SendPageDone relays the provided page completion notification for processing.
	SendPageDone(notification PageDoneNotification)
	// SendGatewayError relays the provided gateway error notification for processing.
	SendGatewayError(notification GatewayErrorNotification)
}
