package stagelog

import (
	"encoding/json"
	"time"

	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/domain/interfaces"

	"github.com/shopspring/decimal"
)

// Fields are the stage-specific extras of a record.
type Fields map[string]any

// Recorder writes the single record a stage owes for each request.
type Recorder struct {
	stage   pipeline.Stage
	emitter interfaces.RecordEmitter
	now     func() time.Time
}

func NewRecorder(stage pipeline.Stage, emitter interfaces.RecordEmitter) *Recorder {
	return &Recorder{stage: stage, emitter: emitter, now: time.Now}
}

// WithClock returns a recorder reading time from now.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	clone := *r
	clone.now = now
	return &clone
}

func (r *Recorder) Stage() pipeline.Stage {
	return r.stage
}

// Now is the moment a stage decides its own outcome. Records carry this time
// even when written after the downstream call returns.
func (r *Recorder) Now() time.Time {
	return r.now().UTC()
}

func (r *Recorder) Info(at time.Time, traceID, message string, extra Fields) {
	r.emit(at, tracelog.LevelInfo, traceID, message, extra)
}

func (r *Recorder) Error(at time.Time, traceID, message string, kind pipeline.FailureKind, extra Fields) {
	if extra == nil {
		extra = Fields{}
	}
	extra[tracelog.ExtraError] = kind.String()
	r.emit(at, tracelog.LevelError, traceID, message, extra)
}

// Reject records a request refused before any work was done.
func (r *Recorder) Reject(traceID, endpoint, method string, err error) {
	r.Error(r.Now(), traceID, "Invalid request payload", pipeline.KindValidation, Fields{
		tracelog.ExtraEndpoint: endpoint,
		tracelog.ExtraMethod:   method,
		tracelog.ExtraDetail:   err.Error(),
	})
}

// HopFailure records a call to the next stage that never got an answer.
func (r *Recorder) HopFailure(at time.Time, traceID string, hopErr *pipeline.HopError, extra Fields) {
	if extra == nil {
		extra = Fields{}
	}
	extra[tracelog.ExtraFailedStage] = hopErr.Stage.String()
	extra[tracelog.ExtraDetail] = hopErr.Detail
	message := "Error calling " + hopErr.Stage.Service()
	if hopErr.Kind == pipeline.KindTimeout {
		message = "Call to " + hopErr.Stage.Service() + " timed out"
	}
	r.Error(at, traceID, message, hopErr.Kind, extra)
}

func (r *Recorder) emit(at time.Time, level tracelog.Level, traceID, message string, extra Fields) {
	r.emitter.Emit(tracelog.Record{
		Timestamp: at,
		Level:     level,
		Service:   r.stage.Service(),
		TraceID:   traceID,
		Message:   message,
		Extra:     map[string]any(extra),
	})
}

// Decimal renders d as an exact JSON number.
func Decimal(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
