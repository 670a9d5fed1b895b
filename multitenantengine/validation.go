package multitenantengine

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// MaxTenantNameLength bounds tenant names and IDs.
const MaxTenantNameLength = 100

var (
	tenantNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_ -]+$`)
	tenantIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
)

// ValidateTenantName validates a display name: 1-100 characters of letters,
// digits, underscores, hyphens or spaces, not blank.
func ValidateTenantName(name string) error {
	if err := validateLength("tenant name", name); err != nil {
		return err
	}
	if !tenantNamePattern.MatchString(name) {
		return fmt.Errorf("%w: tenant name may only contain letters, digits, underscores, hyphens and spaces", ErrInvalidTenant)
	}
	if isBlank(name) {
		return fmt.Errorf("%w: tenant name cannot be blank", ErrInvalidTenant)
	}
	return nil
}

// ValidateTenantID validates a client-supplied tenant ID. IDs appear in URL
// paths, so spaces are not allowed and the first character must be a letter
// or digit.
func ValidateTenantID(id string) error {
	if err := validateLength("tenant id", id); err != nil {
		return err
	}
	if !tenantIDPattern.MatchString(id) {
		return fmt.Errorf("%w: tenant id must match pattern %s", ErrInvalidTenant, tenantIDPattern)
	}
	return nil
}

func validateLength(what, s string) error {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidTenant, what)
	}
	if n > MaxTenantNameLength {
		return fmt.Errorf("%w: %s length %d exceeds maximum of %d characters", ErrInvalidTenant, what, n, MaxTenantNameLength)
	}
	return nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' {
			return false
		}
	}
	return true
}
