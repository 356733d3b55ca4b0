package dto

import "encoding/json"

// Frame types exchanged on the realtime gateway. Control frames manage the
// connection and supplier presence; data frames carry location samples in
// and events out.
const (
	FrameAuth             = "auth"
	FrameSupplierRegister = "supplier.register"
	FrameSupplierOffline  = "supplier.offline"
	FrameLocationPush     = "location.push"
	FrameError            = "error"
)

// Frame is the generic inbound message envelope on the gateway.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AuthFrame is the first frame every connection must send.
type AuthFrame struct {
	Token string `json:"token"`
}

// SupplierRegisterFrame is the supplier presence handshake sent before the
// device starts transmitting location.
type SupplierRegisterFrame struct {
	SupplierID  int64  `json:"supplierId"`
	Username    string `json:"username"`
	ServiceArea string `json:"serviceArea"`
}

// SupplierOfflineFrame is the graceful-disconnect control message.
type SupplierOfflineFrame struct {
	SupplierID int64 `json:"supplierId"`
}

// LocationPushFrame is one raw position sample from a supplier device.
type LocationPushFrame struct {
	SupplierID int64   `json:"supplierId"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Heading    float64 `json:"heading"`
	Speed      float64 `json:"speed"`
}

// ErrorFrame is sent to the client when an inbound frame is rejected.
type ErrorFrame struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
