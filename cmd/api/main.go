package main

import (
	"go.uber.org/fx"

	"github.com/agrilink/agrilink/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
