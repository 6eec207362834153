package async

type PanicHandler interface {
	HandlePanic(r any)
}

type NoopPanicHandler struct{}

func (NoopPanicHandler) HandlePanic(any) {}

// HandlePanic is meant to be deferred at the top of a goroutine. With a nil
// or noop handler the panic propagates unchanged; any other handler receives
// the recovered value.
func HandlePanic(panicHandler PanicHandler) {
	if panicHandler == nil {
		return
	}

	if _, ok := panicHandler.(NoopPanicHandler); ok {
		return
	}

	if _, ok := panicHandler.(*NoopPanicHandler); ok {
		return
	}

	r := recover()
	if r == nil {
		return
	}

	panicHandler.HandlePanic(r)
}
