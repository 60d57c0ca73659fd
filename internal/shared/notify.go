package shared

// Notifier delivers one-shot outcome notifications to the operator.
// Implementations are fire-and-forget; callers never consume a result.
type Notifier interface {
	Success(message string)
	Failure(message string)
}

// FlashNotifier adapts a request session into a Notifier. Messages become
// flash messages rendered by the next page. Safe to use with a nil session,
// in which case notifications are dropped.
type FlashNotifier struct {
	Sess *Session
}

// Success queues a success flash.
func (n FlashNotifier) Success(message string) {
	if n.Sess == nil {
		return
	}
	n.Sess.AddFlash(FlashMessage{Kind: FlashSuccess, Message: message})
}

// Failure queues an error flash.
func (n FlashNotifier) Failure(message string) {
	if n.Sess == nil {
		return
	}
	n.Sess.AddFlash(FlashMessage{Kind: FlashError, Message: message})
}
