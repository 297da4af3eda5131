package eventbus

// Topics published by correctionwatch components.
const (
	TopicMonitorEvent   = "monitor.event"
	TopicMonitorCheck   = "monitor.check"
	TopicNotifierSent   = "notifier.sent"
	TopicNotifierFailed = "notifier.failed"
)
