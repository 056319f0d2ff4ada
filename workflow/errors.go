package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNoReviewers      = errors.New("at least one reviewer is required")
	ErrInvalidSubject   = errors.New("an approval covers an asset or a campaign, not both")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrApprovalNotFound = errors.New("approval not found")
	ErrApprovalClosed   = errors.New("approval is already decided")
	ErrNotAnApprover    = errors.New("not an approver for this item or it has already been reviewed")
)

// ErrorCode categorizes workflow errors.
type ErrorCode string

const (
	ErrCodeNoReviewers    ErrorCode = "NO_REVIEWERS"
	ErrCodeInvalidSubject ErrorCode = "INVALID_SUBJECT"
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeNotFound       ErrorCode = "APPROVAL_NOT_FOUND"
	ErrCodeClosed         ErrorCode = "APPROVAL_CLOSED"
	ErrCodeNotAnApprover  ErrorCode = "NOT_AN_APPROVER"
)

// Error is a rejected workflow request. It unwraps to one of the sentinel
// errors above, so callers can use errors.Is.
type Error struct {
	Code ErrorCode

	// ApprovalID is zero when the request named no existing approval.
	ApprovalID int64

	Err error
}

func (e *Error) Error() string {
	if e.ApprovalID != 0 {
		return fmt.Sprintf("%s: approval %d: %v", e.Code, e.ApprovalID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, approvalID int64, err error) *Error {
	return &Error{Code: code, ApprovalID: approvalID, Err: err}
}

// CodeOf returns the code of a workflow error, or "" for any other error.
func CodeOf(err error) ErrorCode {
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}
