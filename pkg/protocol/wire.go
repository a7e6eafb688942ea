package protocol

// HTTP header names used by the request-per-call transport.
const (
	HeaderAPIVersion = "CBLTest-API-Version"
	HeaderClientID   = "CBLTest-Client-ID"
	HeaderRequestID  = "CBLTest-Request-ID"
	HeaderTestName   = "CBLTest-Test-Name"
	HeaderServerID   = "CBLTest-Server-ID"
)

// Frame fields used by the multiplexed transport. They are merged into the
// top level of the JSON payload.
const (
	FieldSeq        = "ts_id"
	FieldCommand    = "ts_command"
	FieldClientID   = "ts_clientID"
	FieldAPIVersion = "ts_apiVersion"
	FieldRequestID  = "ts_requestID"
	FieldTestName   = "ts_testName"
	FieldServerID   = "ts_serverID"
	FieldError      = "ts_error"
)

// FrameFields lists every frame field, in the order above.
var FrameFields = []string{
	FieldSeq, FieldCommand, FieldClientID, FieldAPIVersion,
	FieldRequestID, FieldTestName, FieldServerID, FieldError,
}

const ContentTypeJSON = "application/json"
