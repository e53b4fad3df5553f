package session

import "errors"

var (
	NotAuthenticatedErr = errors.New("not authenticated")
	NoAccessTokenErr    = errors.New("no access token in response")
)
