package app

import (
	"go.uber.org/fx"

	"github.com/agrilink/agrilink/internal/auth"
	"github.com/agrilink/agrilink/internal/cache"
	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/database"
	"github.com/agrilink/agrilink/internal/hub"
	"github.com/agrilink/agrilink/internal/logger"
	"github.com/agrilink/agrilink/internal/messaging"
	"github.com/agrilink/agrilink/internal/observability"
	repositorydelivery "github.com/agrilink/agrilink/internal/repository/delivery"
	repositoryorder "github.com/agrilink/agrilink/internal/repository/order"
	repositorysupplier "github.com/agrilink/agrilink/internal/repository/supplier"
	httpserver "github.com/agrilink/agrilink/internal/server/http"
	servicefulfillment "github.com/agrilink/agrilink/internal/service/fulfillment"
	servicetracking "github.com/agrilink/agrilink/internal/service/tracking"
	transporthttp "github.com/agrilink/agrilink/internal/transport/http"
	transportws "github.com/agrilink/agrilink/internal/transport/ws"
	"github.com/agrilink/agrilink/internal/worker"
	workerdispatch "github.com/agrilink/agrilink/internal/worker/dispatch"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	auth.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	hub.Module,
	repositoryorder.Module,
	repositorydelivery.Module,
	repositorysupplier.Module,
	servicefulfillment.Module,
	servicetracking.Module,
)

// HTTP wires the dispatch API and realtime gateway on top of the core.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	transportws.Module,
)

// Worker exposes background journal processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerdispatch.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
