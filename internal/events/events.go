/*
Copyright 2025 Largo Chat.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package events publishes stage outcomes to Pulsar so downstream
// services can follow a run without scraping logs.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
)

type EventsClient struct {
	pulsar   pulsar.Client
	producer pulsar.Producer
	queue    chan StageEvent
	done     chan struct{}
}

// StageEvent is published once per pipeline stage.
type StageEvent struct {
	RunID   string    `json:"run_id"`
	Stage   string    `json:"stage"`
	Outcome string    `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier is the narrow interface the pipeline depends on. A nil
// notifier is valid and drops events.
type Notifier interface {
	Notify(event StageEvent)
}

func NewEventsClient(pulsarURL, topic string) (*EventsClient, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: pulsarURL,
	})
	if err != nil {
		return nil, err
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	return &EventsClient{
		pulsar:   client,
		producer: producer,
		queue:    make(chan StageEvent, 16),
		done:     make(chan struct{})}, nil
}

func (c *EventsClient) Notify(event StageEvent) {
	c.queue <- event
}

// Listen drains the queue into the producer. Publish failures are
// logged and never fail a run.
func (c *EventsClient) Listen() {
	defer close(c.done)
	for event := range c.queue {
		jsonMessage, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			continue
		}
		if _, err := c.producer.Send(context.Background(),
			&pulsar.ProducerMessage{Payload: jsonMessage}); err != nil {
			log.Printf("Failed to send event: %v", err)
		}
	}
}

// Close waits for Listen to drain whatever is still queued before
// tearing down the producer.
func (c *EventsClient) Close() {
	close(c.queue)
	<-c.done
	c.producer.Close()
	c.pulsar.Close()
}
