package runtime

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cepflow/cepflow/cep/compiler"
	"github.com/cepflow/cepflow/cep/engine"
	"github.com/cepflow/cepflow/cep/pattern"
	errspkg "github.com/cepflow/cepflow/internal/runtime/errors"
	idspkg "github.com/cepflow/cepflow/internal/runtime/ids"
	jsoncodec "github.com/cepflow/cepflow/internal/runtime/jsoncodec"
	metadatapkg "github.com/cepflow/cepflow/internal/runtime/metadata"
)

// PatternHandlerRegistration wires a pattern.Pattern to the router:
// incoming messages decode into V, drive a long-lived NFA instance, and
// any completed matches (and, if TimeoutQueue is set, any timed-out
// partial matches) are published back out as JSON.
type PatternHandlerRegistration[V any] struct {
	Name         string
	ConsumeQueue string
	MatchQueue   string
	TimeoutQueue string

	Pattern *pattern.Pattern[V]
	Options []engine.Option[V]

	// Timestamp extracts the event-time ordinal Process should use for
	// window bookkeeping. Required.
	Timestamp func(V) int64
}

// patternMatchOutput is the JSON shape published for a completed match:
// each pattern stage name maps to the ordered events taken for it.
type patternMatchOutput[V any] struct {
	Kind      string         `json:"kind"`
	Stages    map[string][]V `json:"stages"`
	StartTime int64          `json:"start_time,omitempty"`
	ExpiredAt int64          `json:"expired_at,omitempty"`
}

// RegisterPatternHandler compiles cfg.Pattern and registers a handler
// that runs every consumed message through the resulting automaton.
func RegisterPatternHandler[V any](svc *Service, cfg PatternHandlerRegistration[V]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.Pattern == nil {
		return errspkg.ErrPatternRequired
	}
	if cfg.Timestamp == nil {
		return errspkg.ErrTimestampFuncRequired
	}
	if cfg.ConsumeQueue == "" {
		return errspkg.ErrConsumeQueueRequired
	}

	graph, err := compiler.Compile(cfg.Pattern, cfg.TimeoutQueue != "")
	if err != nil {
		return fmt.Errorf("compile pattern for handler %q: %w", cfg.Name, err)
	}

	nfa := engine.New(graph, cfg.Options...)

	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%T-PatternHandler", *new(V))
	}

	handler := buildPatternHandlerFunc(svc, nfa, name, cfg)

	return svc.registerHandler(handlerRegistration{
		Name:         name,
		ConsumeQueue: cfg.ConsumeQueue,
		PublishQueue: cfg.MatchQueue,
		Handler:      handler,
	})
}

func buildPatternHandlerFunc[V any](svc *Service, nfa *engine.NFA[V], name string, cfg PatternHandlerRegistration[V]) message.HandlerFunc {
	var mu sync.Mutex

	return func(msg *message.Message) ([]*message.Message, error) {
		var payload V
		if err := jsoncodec.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pattern handler payload: %w", err)
		}

		mu.Lock()
		matches, timeouts, err := nfa.Process(&payload, cfg.Timestamp(payload))
		mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", name, err)
		}

		if span := trace.SpanFromContext(msg.Context()); span.IsRecording() {
			span.SetAttributes(
				attribute.String("cep.pattern", name),
				attribute.Int("cep.matches", len(matches)),
				attribute.Int("cep.timeouts", len(timeouts)),
			)
		}

		outgoing := make([]*message.Message, 0, len(matches))
		for _, m := range matches {
			out, err := encodePatternOutput[V](patternMatchOutput[V]{Kind: "match", Stages: m}, msg.Metadata)
			if err != nil {
				return nil, err
			}
			outgoing = append(outgoing, out)
		}

		// Timeouts route to a separate topic than matches, so they are
		// published directly rather than returned: the router only
		// forwards a handler's return value to its one configured
		// PublishQueue.
		if cfg.TimeoutQueue != "" && len(timeouts) > 0 {
			timeoutMsgs := make([]*message.Message, 0, len(timeouts))
			for _, to := range timeouts {
				out, err := encodePatternOutput[V](patternMatchOutput[V]{
					Kind:      "timeout",
					Stages:    to.Match,
					StartTime: to.StartTime,
					ExpiredAt: to.ExpiredAt,
				}, msg.Metadata)
				if err != nil {
					return nil, err
				}
				timeoutMsgs = append(timeoutMsgs, out)
			}
			if err := svc.publisher.Publish(cfg.TimeoutQueue, timeoutMsgs...); err != nil {
				return nil, fmt.Errorf("pattern %q: publish timeouts: %w", name, err)
			}
		}

		if len(outgoing) == 0 {
			return nil, nil
		}
		return outgoing, nil
	}
}

func encodePatternOutput[V any](payload patternMatchOutput[V], fallback message.Metadata) (*message.Message, error) {
	body, err := jsoncodec.Marshal(payload)
	if err != nil {
		return nil, err
	}

	out := message.NewMessage(idspkg.CreateULID(), body)
	md := metadatapkg.FromWatermill(fallback).Clone()
	md["cep_output_kind"] = payload.Kind
	md["event_message_schema"] = fmt.Sprintf("cep.%sV1", payload.Kind)
	out.Metadata = metadatapkg.ToWatermill(md)
	return out, nil
}
