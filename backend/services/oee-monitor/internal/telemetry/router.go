package telemetry

import (
	"go.uber.org/zap"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// HandlerFunc consumes a decoded event.
type HandlerFunc func(event models.TelemetryEvent)

// Router dispatches events by kind. Unknown kinds go to a no-op sink.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter returns router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{handlers: make(map[string]HandlerFunc), logger: logger}
}

// Register attaches handler to kind.
func (r *Router) Register(kind string, handler HandlerFunc) {
	r.handlers[kind] = handler
}

// Route executes the handler for event.Kind and reports whether one was registered.
func (r *Router) Route(event models.TelemetryEvent) bool {
	handler, ok := r.handlers[event.Kind]
	if !ok {
		r.logger.Debug("ignoring telemetry kind", zap.String("kind", event.Kind))
		return false
	}
	handler(event)
	return true
}

// Recorder counts frame outcomes.
type Recorder interface {
	FrameReceived()
	FrameRejected()
	FrameIgnored(kind string)
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived()      {}
func (nopRecorder) FrameRejected()      {}
func (nopRecorder) FrameIgnored(string) {}

// Processor ties together decoding and routing. It never fails the stream: bad frames
// are logged and counted, then dropped.
type Processor struct {
	decoder  *Decoder
	router   *Router
	recorder Recorder
	logger   *zap.Logger
}

// NewProcessor builds Processor. recorder may be nil.
func NewProcessor(decoder *Decoder, router *Router, recorder Recorder, logger *zap.Logger) *Processor {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{decoder: decoder, router: router, recorder: recorder, logger: logger}
}

// Process handles one raw frame and returns the decode error, if any, for inspection.
func (p *Processor) Process(raw []byte) error {
	p.recorder.FrameReceived()

	event, err := p.decoder.Decode(raw)
	if err != nil {
		p.recorder.FrameRejected()
		p.logger.Warn("dropping malformed telemetry frame", zap.Error(err), zap.Int("bytes", len(raw)))
		return err
	}

	if !p.router.Route(event) {
		p.recorder.FrameIgnored(event.Kind)
	}
	return nil
}
