package loanrepo

import "errors"

var (
	ErrNotFound      = errors.New("loan not found")
	ErrNoAccess      = errors.New("loan not shared with user")
	ErrAlreadyShared = errors.New("loan already shared with user")
)

type ListLoansRequest struct {
	UserID int64
	All    bool
	Offset int
	Limit  int
}
