// Package alerts defines the alert record shared by the governor, the usage
// monitor and the health loops, together with the sinks alerts are delivered to.
//
// # Sinks
//
//   - Store keeps the most recent alerts in a JSON array file, rewritten
//     atomically on every append. It is the source for GET /v1/alerts.
//   - KafkaSink publishes each alert as JSON to a Kafka topic, keyed by source.
//   - Fanout delivers to several sinks and joins their errors.
//
// Producers build alerts with New and hand them to a Sink:
//
//	sink.Send(ctx, alerts.New(alerts.TypeHighCost, alerts.SeverityHigh, "santiment",
//	    "High cost API call: $0.0600"))
package alerts
