package runtime

// Handler runs one claimed job to a terminal state. A returned error is
// recorded as a fatal failure if the handler did not already finish the job.
type Handler interface {
	Run(jc *Context) error
}

type HandlerFunc func(jc *Context) error

func (f HandlerFunc) Run(jc *Context) error { return f(jc) }
