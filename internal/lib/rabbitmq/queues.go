package rabbitmq

// Имена обменника и очереди событий жизненного цикла подписок.
const (
	Exchange    = "notifications"
	EventsQueue = "subscription.events"
)

// QueueConfig описывает привязку очереди к обменнику по ключу маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// NotificationQueues возвращает привязки очереди событий: по одной на тип события.
func NotificationQueues(routingKeys ...string) []QueueConfig {
	queues := make([]QueueConfig, 0, len(routingKeys))
	for _, key := range routingKeys {
		queues = append(queues, QueueConfig{QueueName: EventsQueue, RoutingKey: key})
	}
	return queues
}
