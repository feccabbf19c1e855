package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Tgsps/coffee-sub000/pkg/repository"
	"github.com/asynkron/protoactor-go/actor"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// orderEventActor handles order events one at a time: publish, then record
// an audit entry. Failures are logged; the request that raised the event has
// already been answered.
type orderEventActor struct {
	publisher Publisher
	audit     repository.AuditStore
	logger    *zap.Logger
}

func (a *orderEventActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *OrderEvent:
		a.handle(msg)

	case *actor.Started:
		a.logger.Info("Order event actor started")

	case *actor.Stopping:
		a.logger.Info("Order event actor stopping")

	case *actor.Stopped:
		a.logger.Info("Order event actor stopped")
	}
}

func (a *orderEventActor) handle(evt *OrderEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := a.publisher.Publish(ctx, evt); err != nil {
		a.logger.Error("Failed to publish order event",
			zap.String("type", string(evt.Kind)),
			zap.String("order_id", evt.OrderID),
			zap.Error(err))
	}

	err := a.audit.CreateAuditLog(ctx, &repository.AuditLog{
		Service:  "storefront",
		Action:   string(evt.Kind),
		EntityID: evt.OrderID,
		Data:     bson.M{"user_id": evt.UserID, "total_price": evt.TotalPrice},
	})
	if err != nil {
		a.logger.Error("Failed to write audit log",
			zap.String("order_id", evt.OrderID),
			zap.Error(err))
	}
}

// Dispatcher owns the actor system that processes order events.
type Dispatcher struct {
	system    *actor.ActorSystem
	pid       *actor.PID
	publisher Publisher
	logger    *zap.Logger
}

func NewDispatcher(publisher Publisher, audit repository.AuditStore, logger *zap.Logger) (*Dispatcher, error) {
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &orderEventActor{
			publisher: publisher,
			audit:     audit,
			logger:    logger.Named("order-events"),
		}
	})
	pid, err := system.Root.SpawnNamed(props, "order-events")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn order event actor: %w", err)
	}

	return &Dispatcher{
		system:    system,
		pid:       pid,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Notify queues evt without waiting for it to be handled.
func (d *Dispatcher) Notify(evt OrderEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	d.system.Root.Send(d.pid, &evt)
}

// Stop drains queued events, then closes the publisher.
func (d *Dispatcher) Stop() error {
	if err := d.system.Root.PoisonFuture(d.pid).Wait(); err != nil {
		d.logger.Warn("Order event actor did not stop cleanly", zap.Error(err))
	}
	d.system.Shutdown()
	return d.publisher.Close()
}
