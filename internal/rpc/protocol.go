package rpc

import "encoding/json"

// Services exposed by the platform's JSON-RPC endpoint.
const (
	ServiceCommon = "common"
	ServiceObject = "object"
	ServiceReport = "report"
)

const endpointPath = "/jsonrpc"

// request is a JSON-RPC 2.0 call envelope. The platform dispatches on
// params.service and params.method; the top-level method is always "call".
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  requestParams `json:"params"`
}

type requestParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *responseError  `json:"error,omitempty"`
}

// responseError mirrors the platform's error object: a generic code and
// message plus the server-side exception in data.
type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name          string `json:"name"`
		Message       string `json:"message"`
		Debug         string `json:"debug"`
		ExceptionType string `json:"exception_type"`
	} `json:"data"`
}

func newRequest(id int64, service, method string, args []any) request {
	if args == nil {
		args = []any{}
	}
	return request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "call",
		Params: requestParams{
			Service: service,
			Method:  method,
			Args:    args,
		},
	}
}

// versionInfo is the subset of common.version we keep.
type versionInfo struct {
	ServerVersion string `json:"server_version"`
}
