package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/pkg/dcaledger"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// errorCode maps a sentinel to its HTTP status and stable code. Entries
// are matched in order, so wrapping sentinels come first.
type errorCode struct {
	err    error
	status int
	code   string
}

var errorCodes = []errorCode{
	{domain.ErrInsufficientDeposit, http.StatusBadRequest, "insufficient_deposit"},
	{domain.ErrPayoutIncomplete, http.StatusBadGateway, "payout_incomplete"},
	{domain.ErrConversionFailed, http.StatusBadGateway, "conversion_failed"},
	{domain.ErrAmountZero, http.StatusBadRequest, "amount_zero"},
	{domain.ErrCountZero, http.StatusBadRequest, "count_zero"},
	{domain.ErrInvalidOwner, http.StatusBadRequest, "invalid_owner"},
	{domain.ErrOverflow, http.StatusBadRequest, "overflow"},
	{domain.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{domain.ErrAlreadyRanThisPeriod, http.StatusConflict, "already_ran_this_period"},
	{domain.ErrNothingToSell, http.StatusConflict, "nothing_to_sell"},
	{domain.ErrReentrantCall, http.StatusConflict, "reentrant_call"},
	{domain.ErrInsufficientHoldings, http.StatusInternalServerError, "insufficient_holdings"},
	{dcaledger.ErrUnknownAsset, http.StatusBadRequest, "unknown_asset"},
	{dcaledger.ErrNoJournal, http.StatusNotImplemented, "no_journal"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{errNotFound, http.StatusNotFound, "not_found"},
}

func classify(err error) (int, string) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIError is returned by Client for non-2xx responses. It unwraps to the
// sentinel matching its code, so errors.Is works across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

func (e *APIError) Unwrap() error {
	for _, c := range errorCodes {
		if c.code == e.Code {
			return c.err
		}
	}
	return nil
}
