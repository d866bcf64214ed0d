package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ProfilesErrorBadInput           = "PROFILES_BAD_INPUT"
	ProfilesErrorNotInitialized     = "PROFILES_NOT_INITIALIZED"
	ProfilesErrorProfileNotFound    = "PROFILES_PROFILE_NOT_FOUND"
	ProfilesErrorProfileExists      = "PROFILES_PROFILE_EXISTS"
	ProfilesErrorInstanceNotFound   = "PROFILES_INSTANCE_NOT_FOUND"
	ProfilesErrorInstanceInUse      = "PROFILES_INSTANCE_IN_USE"
	ProfilesErrorRefreshFailed      = "PROFILES_REFRESH_FAILED"
	ProfilesErrorCredentialExpired  = "PROFILES_CREDENTIAL_EXPIRED"
	ProfilesErrorAddressUnresolved  = "PROFILES_ADDRESS_UNRESOLVED"
	ProfilesErrorMissingIdentifier  = "PROFILES_MISSING_IDENTIFIER"
	ProfilesErrorStorageUnavailable = "PROFILES_STORAGE_UNAVAILABLE"
	ProfilesErrorClientCreateFailed = "PROFILES_CLIENT_CREATE_FAILED"
	ProfilesErrorInternal           = "PROFILES_INTERNAL_ERROR"
)

func profileErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureProfileErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not initialized"):
		return newProfileError(err.Error(), goerrors.CategoryConflict, ProfilesErrorNotInitialized)
	case strings.Contains(msg, "profile") && strings.Contains(msg, "not found"):
		return newProfileError(err.Error(), goerrors.CategoryNotFound, ProfilesErrorProfileNotFound)
	case strings.Contains(msg, "instance") && strings.Contains(msg, "not found"):
		return newProfileError(err.Error(), goerrors.CategoryNotFound, ProfilesErrorInstanceNotFound)
	case strings.Contains(msg, "already exists"):
		return newProfileError(err.Error(), goerrors.CategoryConflict, ProfilesErrorProfileExists)
	case strings.Contains(msg, "in use"):
		return newProfileError(err.Error(), goerrors.CategoryConflict, ProfilesErrorInstanceInUse)
	case strings.Contains(msg, "refresh"):
		return newProfileError(err.Error(), goerrors.CategoryExternal, ProfilesErrorRefreshFailed)
	case strings.Contains(msg, "expired"):
		return newProfileError(err.Error(), goerrors.CategoryAuth, ProfilesErrorCredentialExpired)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newProfileError(err.Error(), goerrors.CategoryBadInput, ProfilesErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureProfileErrorEnvelope(mapped)
}

func newProfileError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureProfileErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureProfileErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = profileHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultProfileTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultProfileTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ProfilesErrorBadInput
	case goerrors.CategoryNotFound:
		return ProfilesErrorProfileNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ProfilesErrorCredentialExpired
	case goerrors.CategoryConflict:
		return ProfilesErrorProfileExists
	case goerrors.CategoryExternal:
		return ProfilesErrorRefreshFailed
	default:
		return ProfilesErrorInternal
	}
}

func profileHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
