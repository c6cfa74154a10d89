package session

import "errors"

var (
	// ErrScanTimeout is returned when no peripheral was chosen in time.
	ErrScanTimeout = errors.New("scan timeout, please try again")
	// ErrConnectTimeout is returned when the connection did not open in time.
	ErrConnectTimeout = errors.New("connection timeout, please try again")
	// ErrNoGattSupport is returned for peripherals without an attribute server.
	ErrNoGattSupport = errors.New("device does not support GATT services")
	// ErrPartialServiceFailure marks one attribute group that could not be set
	// up. It is recorded on the group and never returned from ConnectToDevice.
	ErrPartialServiceFailure = errors.New("attribute group setup failed")
	// ErrAlreadyConnected is returned by ConnectToDevice while a session is
	// connected; Disconnect first.
	ErrAlreadyConnected = errors.New("a device is already connected")
	// ErrBusy is returned when a scan or connect is already in progress.
	ErrBusy = errors.New("session busy")
	// ErrConnectionLost is returned when the session was torn down while
	// ConnectToDevice was still setting it up.
	ErrConnectionLost = errors.New("connection lost during setup")
	// ErrEmptyPayload is returned for a zero length characteristic read.
	ErrEmptyPayload = errors.New("empty data received")
)
