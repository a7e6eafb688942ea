package config

import (
	"github.com/syncbench/tdk/pkg/client"
	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/recorder"
	"github.com/syncbench/tdk/pkg/transport"
	"github.com/syncbench/tdk/pkg/transport/httptransport"
)

// FactoryParams turns the configuration into the parameters of a request
// factory. A nil registry makes the factory build the default one.
func (c Config) FactoryParams(registry *protocol.Registry) (client.FactoryParams, error) {
	servers := make([]client.ServerInfo, 0, len(c.TestServers))
	for _, server := range c.TestServers {
		kind, err := transport.ParseType(server.Transport)
		if err != nil {
			return client.FactoryParams{}, err
		}
		servers = append(servers, client.ServerInfo{URL: server.URL, Transport: kind})
	}

	return client.FactoryParams{
		Servers:          servers,
		MaxVersion:       c.APIVersion,
		Registry:         registry,
		HTTPClient:       httptransport.NewClient(c.HTTPTimeout),
		Recorder:         recorder.NewOS(c.RecordPath),
		WSListenAddress:  c.WSListenAddress,
		WSMaxMessageSize: int64(c.WSMaxMessageSize.Bytes()),
		ConnectTimeout:   c.ConnectTimeout,
		PollSpec:         c.PollSpec(),
	}, nil
}

// SessionSpecs describes one session per configured test server, carrying
// its dataset version and the log collection endpoint.
func (c Config) SessionSpecs() []client.SessionSpec {
	specs := make([]client.SessionSpec, len(c.TestServers))
	for i, server := range c.TestServers {
		specs[i] = client.SessionSpec{
			Index:          i,
			DatasetVersion: server.DatasetVersion,
			LogURL:         c.LogSlurp,
		}
	}
	return specs
}

// NewFactory builds a request factory for the configured test servers.
func (c Config) NewFactory(registry *protocol.Registry) (*client.Factory, error) {
	params, err := c.FactoryParams(registry)
	if err != nil {
		return nil, err
	}
	return client.NewFactory(params)
}
