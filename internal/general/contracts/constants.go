package contracts

// Exchanges
const (
	ExchangeRideTopic         = "ride_topic"
	ExchangePaymentsTopic     = "payments_topic"
	ExchangeNotificationTopic = "notifications_topic"
)

// Queues
const (
	QueueRideStatus    = "ride_status"
	QueuePaymentCmds   = "payment_commands"
	QueueNotifications = "notifications"
)

// Routing patterns
const (
	RouteRideStatusPrefix   = "ride.status."  // {status}
	RoutePaymentPrefix      = "payment."      // {hold|capture|void}
	RouteNotificationPrefix = "notification." // {sms|email}
)
