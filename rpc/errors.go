package rpc

import (
	"errors"
	"fmt"
	"net/http"

	proxyerrors "genproxy/core/errors"
)

// paramsError marks a request whose parameters could not be decoded.
type paramsError struct {
	msg string
}

func (e *paramsError) Error() string { return e.msg }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{msg: fmt.Sprintf(format, args...)}
}

// toRPCError maps the node's error taxonomy onto JSON-RPC codes. Specific
// causes win over the collaborator wrapper so a rejected hook still reports
// why it was rejected.
func toRPCError(err error) (int, *RPCError) {
	var pe *paramsError
	if errors.As(err, &pe) {
		return http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: pe.msg}
	}
	data := errorData(err)
	switch {
	case errors.Is(err, proxyerrors.ErrUnauthorized):
		return http.StatusForbidden, &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: data}
	case errors.Is(err, proxyerrors.ErrIncorrectPayloadVariant):
		return http.StatusBadRequest, &RPCError{Code: codeIncorrectPayload, Message: "incorrect payload variant", Data: data}
	case errors.Is(err, proxyerrors.ErrInsufficientBalance):
		return http.StatusConflict, &RPCError{Code: codeInsufficientBalance, Message: "insufficient balance", Data: data}
	case errors.Is(err, proxyerrors.ErrInvalidAmount),
		errors.Is(err, proxyerrors.ErrInvalidAddress),
		errors.Is(err, proxyerrors.ErrUnknownMessage),
		errors.Is(err, proxyerrors.ErrUnknownContract):
		return http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: data}
	case errors.Is(err, proxyerrors.ErrCollaboratorFailure):
		return http.StatusConflict, &RPCError{Code: codeCollaboratorFailure, Message: "collaborator failure", Data: data}
	default:
		return http.StatusInternalServerError, &RPCError{Code: codeServerError, Message: "internal error", Data: err.Error()}
	}
}

func errorData(err error) map[string]string {
	data := map[string]string{"error": err.Error()}
	var collab *proxyerrors.CollaboratorError
	if errors.As(err, &collab) {
		data["contract"] = collab.Contract
	}
	return data
}
