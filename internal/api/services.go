package api

import (
	"github.com/listenupapp/treewatch/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Monitors *service.MonitorService
}
