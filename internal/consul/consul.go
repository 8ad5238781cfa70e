package consul

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

func NewClient(address string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return client, nil
}

// RegisterService announces this instance with an HTTP health check on /ping.
func RegisterService(client *consulapi.Client, name, host string, port int) error {
	registration := &consulapi.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%s-%d", name, host, port),
		Name:    name,
		Address: host,
		Port:    port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/ping", host, port),
			Interval: "10s",
			Timeout:  "2s",
		},
	}
	if err := client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("registering service %s: %w", name, err)
	}
	return nil
}
