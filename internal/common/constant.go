// Package common contains shared constants and sentinel errors used across
// notesync components.
package common

// AccessTokenHeaderName is a metadata key name for the access token. The
// HTTP transport does not use it; it sends the token in an Authorization
// Bearer header.
const AccessTokenHeaderName = "access_token"
