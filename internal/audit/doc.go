// Package audit records security relevant authorization events.
//
// Every transition of the authorization lifecycle (start, success, failure,
// refresh, revocation, reset) is emitted as an Event to a Sink. LogSink
// writes SECURITY_AUDIT lines through the structured logger; AMQPSink
// publishes JSON messages to a RabbitMQ topic exchange so that a fleet of
// installations can be monitored centrally. MultiSink fans out to several.
//
// Events never carry token values. Emission is best effort: a failing sink
// is logged and otherwise ignored.
package audit
