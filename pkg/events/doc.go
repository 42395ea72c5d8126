/*
Package events provides an in-memory, best-effort pub/sub broker for
instance lifecycle notifications.

Broker is a fan-out bus: Publish never blocks on subscribers, and a
subscriber with a full buffer silently drops events rather than
stalling the publisher. This is ambient observability only — nothing
in pkg/reconciler or pkg/instancemanager depends on events being
delivered. The broker is standalone: no other package in this
repository publishes to it or subscribes to it.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s: %s\n", event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventInstanceAllocated,
		Message: "i-042 allocated cloud-7f3a",
	})
*/
package events
