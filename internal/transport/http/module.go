package http

import (
	"go.uber.org/fx"

	dispatchtransport "github.com/agrilink/agrilink/internal/transport/http/dispatch"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	dispatchtransport.Module,
)
