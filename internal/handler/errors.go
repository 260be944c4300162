package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/apimplane/apim/internal/service"
)

type sentinelMapping struct {
	err    error
	status int
	code   string
}

var sentinelErrors = []sentinelMapping{
	{service.ErrPlanAlreadyClosed, http.StatusBadRequest, "PLAN_ALREADY_CLOSED"},
	{service.ErrPlanAlreadyDeprecated, http.StatusBadRequest, "PLAN_ALREADY_DEPRECATED"},
	{service.ErrPlanAlreadyPublished, http.StatusBadRequest, "PLAN_ALREADY_PUBLISHED"},
	{service.ErrPlanNotYetPublished, http.StatusBadRequest, "PLAN_NOT_YET_PUBLISHED"},
	{service.ErrPlanHasActiveSubscriptions, http.StatusBadRequest, "PLAN_WITH_SUBSCRIPTIONS"},
	{service.ErrKeylessPlanAlreadyPublished, http.StatusBadRequest, "KEYLESS_PLAN_ALREADY_PUBLISHED"},
	{service.ErrPlanNotSubscribable, http.StatusBadRequest, "PLAN_NOT_SUBSCRIBABLE"},
	{service.ErrPlanSecurityImmutable, http.StatusBadRequest, "PLAN_SECURITY_IMMUTABLE"},

	{service.ErrApiRunning, http.StatusBadRequest, "API_RUNNING"},
	{service.ErrApiArchived, http.StatusBadRequest, "API_ARCHIVED"},
	{service.ErrApiAlreadyStarted, http.StatusBadRequest, "API_ALREADY_STARTED"},
	{service.ErrApiAlreadyStopped, http.StatusBadRequest, "API_ALREADY_STOPPED"},
	{service.ErrApiNotManagedByCRD, http.StatusBadRequest, "API_NOT_MANAGED_BY_KUBERNETES"},
	{service.ErrApiManagedByCRD, http.StatusForbidden, "API_MANAGED_BY_KUBERNETES"},
	{service.ErrContextPathConflict, http.StatusConflict, "CONTEXT_PATH_ALREADY_EXISTS"},

	{service.ErrSubscriptionNotActive, http.StatusBadRequest, "SUBSCRIPTION_NOT_ACTIVE"},
	{service.ErrSubscriptionAlreadyExists, http.StatusConflict, "SUBSCRIPTION_ALREADY_EXISTS"},
	{service.ErrSubscriptionNotPending, http.StatusBadRequest, "SUBSCRIPTION_NOT_PENDING"},
	{service.ErrSubscriptionInvalidPause, http.StatusBadRequest, "SUBSCRIPTION_NOT_PAUSABLE"},
	{service.ErrSubscriptionNotPaused, http.StatusBadRequest, "SUBSCRIPTION_NOT_PAUSED"},
	{service.ErrApplicationArchived, http.StatusBadRequest, "APPLICATION_ARCHIVED"},

	{service.ErrPrimaryOwnerMembership, http.StatusBadRequest, "PRIMARY_OWNER_MEMBERSHIP"},
	{service.ErrMemberAlreadyExists, http.StatusConflict, "MEMBER_ALREADY_EXISTS"},
	{service.ErrTransferToCurrentOwner, http.StatusBadRequest, "ALREADY_PRIMARY_OWNER"},

	{service.ErrTokenNotFound, http.StatusNotFound, "TOKEN_NOT_FOUND"},
	{service.ErrTokenOwnedByAnotherUser, http.StatusNotFound, "TOKEN_NOT_FOUND"},
	{service.ErrInvalidScope, http.StatusBadRequest, "INVALID_SCOPE"},
	{service.ErrInvalidTier, http.StatusBadRequest, "INVALID_RATE_LIMIT_TIER"},
}

// handleServiceError maps a domain error to its HTTP representation.
// Unknown errors are logged and reported as 500.
func handleServiceError(logger *slog.Logger, w http.ResponseWriter, err error) {
	var nf *service.NotFoundError
	if errors.As(err, &nf) {
		writeErrorWithParams(w, http.StatusNotFound, notFoundCode(nf.Kind), nf.Error(),
			map[string]string{lowerFirst(nf.Kind): nf.ID})
		return
	}

	var ve *service.ValidationError
	if errors.As(err, &ve) {
		var params map[string]string
		if ve.Field != "" {
			params = map[string]string{"field": ve.Field}
		}
		writeErrorWithParams(w, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error(), params)
		return
	}

	var po *service.PrimaryOwnerNotFoundError
	if errors.As(err, &po) {
		code := strings.ToUpper(string(po.ReferenceType)) + "_PRIMARY_OWNER_NOT_FOUND"
		writeErrorWithParams(w, http.StatusInternalServerError, code, po.Error(),
			map[string]string{"referenceId": po.ReferenceID})
		return
	}

	for _, m := range sentinelErrors {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, m.err.Error())
			return
		}
	}

	if logger != nil {
		logger.Error("unhandled service error", "error", err)
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

// notFoundCode turns an entity kind into an error code, e.g. Plan -> PLAN_NOT_FOUND.
func notFoundCode(kind string) string {
	return strings.ToUpper(kind) + "_NOT_FOUND"
}

func lowerFirst(s string) string {
	if s == "" {
		return "id"
	}
	return strings.ToLower(s[:1]) + s[1:]
}
