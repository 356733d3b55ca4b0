package supplier

import (
	"go.uber.org/fx"

	"github.com/agrilink/agrilink/internal/port"
)

// Module provides the supplier repository to Fx.
var Module = fx.Provide(
	fx.Annotate(NewRepository, fx.As(new(port.SupplierRepository))),
)
