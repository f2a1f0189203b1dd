package agent

import (
	"context"
	"os"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/config"
)

const ServiceName = "wagate"

// ServiceProgram implements service.Interface
type ServiceProgram struct {
	config *config.Config
	web    *WebService
}

func (p *ServiceProgram) Start(s service.Service) error {
	logrus.Infoln("Gateway service starting")

	web, err := StartWebService(p.config)
	if err != nil {
		logrus.WithError(err).Errorln("Failed to start web service")
		return err
	}
	p.web = web

	return nil
}

func (p *ServiceProgram) Stop(s service.Service) error {
	logrus.Infoln("Gateway service stopping")

	if p.web == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.Server.Limits.ShutdownTimeout)
	defer cancel()

	return p.web.Stop(ctx)
}

// CreateService creates a new service instance
func CreateService(cfg *config.Config, configFile string) (service.Service, error) {
	return service.New(&ServiceProgram{config: cfg}, getServiceConfig(configFile))
}

// getServiceConfig returns the service configuration
func getServiceConfig(configFile string) *service.Config {
	exePath, err := os.Executable()
	if err != nil {
		logrus.Fatal(err)
	}

	args := []string{"server"}
	if len(configFile) > 0 {
		args = append(args, "--config", configFile)
	}

	return &service.Config{
		Name:        ServiceName,
		DisplayName: "WhatsApp Session Gateway",
		Description: "Multi-tenant gateway for WhatsApp Web sessions",
		Executable:  exePath,
		Arguments:   args,
	}
}
