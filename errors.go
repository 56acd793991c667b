package accessctl

import "errors"

// Administrative mutation errors propagate to the caller so it can answer
// with an appropriate 4xx. Decision-path failures never propagate; they
// degrade to a denial inside CheckAccess.
var (
	ErrDuplicateRole       = errors.New("accessctl: role already exists")
	ErrDuplicatePolicy     = errors.New("accessctl: policy already exists")
	ErrRoleNotFound        = errors.New("accessctl: role not found")
	ErrPolicyNotFound      = errors.New("accessctl: policy not found")
	ErrResourceNotFound    = errors.New("accessctl: resource not found")
	ErrUserNotFound        = errors.New("accessctl: user not found")
	ErrTemplateNotFound    = errors.New("accessctl: role template not found")
	ErrSystemRoleImmutable = errors.New("accessctl: system role is immutable")
	ErrInheritanceCycle    = errors.New("accessctl: role inheritance cycle")
)
