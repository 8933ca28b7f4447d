// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/cepflow/cepflow/transport/aws"
	_ "github.com/cepflow/cepflow/transport/channel"
	_ "github.com/cepflow/cepflow/transport/http"
	iotransport "github.com/cepflow/cepflow/transport/io"
	_ "github.com/cepflow/cepflow/transport/jetstream"
	_ "github.com/cepflow/cepflow/transport/kafka"
	natstransport "github.com/cepflow/cepflow/transport/nats"
	_ "github.com/cepflow/cepflow/transport/postgres"
	rabbitmqtransport "github.com/cepflow/cepflow/transport/rabbitmq"
	_ "github.com/cepflow/cepflow/transport/sqlite"
)

// The io, nats and rabbitmq packages have no init of their own, so they are registered here.
func init() {
	iotransport.Register()
	natstransport.Register()
	rabbitmqtransport.Register()
}
