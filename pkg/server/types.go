package server

import "github.com/dd0wney/cluso-lobstore/pkg/lob"

// BeginSessionResponse is returned by POST /v1/sessions.
type BeginSessionResponse struct {
	SessionID string `json:"session_id"`
}

// OpenRequest opens a handle on an existing object.
type OpenRequest struct {
	ObjectID lob.ObjectID `json:"object_id"`
	Mode     int          `json:"mode"`
}

// OpenResponse carries the allocated handle.
type OpenResponse struct {
	Handle lob.Handle `json:"handle"`
}

// HandleRequest names a handle for close and tell.
type HandleRequest struct {
	Handle lob.Handle `json:"handle"`
}

// ReadRequest reads up to Length bytes from a handle.
type ReadRequest struct {
	Handle lob.Handle `json:"handle"`
	Length int        `json:"length"`
}

// ReadResponse carries the bytes read, base64-encoded by encoding/json.
type ReadResponse struct {
	Data []byte `json:"data"`
}

// WriteRequest writes Data at the handle's current position.
type WriteRequest struct {
	Handle lob.Handle `json:"handle"`
	Data   []byte     `json:"data"`
}

// WriteResponse reports how many bytes were written.
type WriteResponse struct {
	Written int `json:"written"`
}

// SeekRequest repositions a handle.
type SeekRequest struct {
	Handle lob.Handle `json:"handle"`
	Offset int64      `json:"offset"`
	Whence int        `json:"whence"`
}

// PositionResponse reports a handle position after seek or tell.
type PositionResponse struct {
	Position int64 `json:"position"`
}

// CreateRequest creates a new empty object.
type CreateRequest struct {
	Mode int `json:"mode"`
}

// ObjectResponse carries an object identifier.
type ObjectResponse struct {
	ObjectID lob.ObjectID `json:"object_id"`
}

// UnlinkRequest removes an object from the store.
type UnlinkRequest struct {
	ObjectID lob.ObjectID `json:"object_id"`
}

// ImportRequest copies a server-side file into a new object.
type ImportRequest struct {
	Path string `json:"path"`
}

// ExportRequest copies an object into a server-side file.
type ExportRequest struct {
	ObjectID lob.ObjectID `json:"object_id"`
	Path     string       `json:"path"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Backend  string `json:"backend"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
