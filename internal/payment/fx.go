package payment

import (
	"github.com/smallbiznis/agentdesk/internal/payment/repository"
	"github.com/smallbiznis/agentdesk/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
