package github

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/docshub/internal/apperr"
)

// classify maps a go-github error onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperr.E(apperr.KindRateLimited, op, err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperr.E(apperr.KindRateLimited, op, err)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch status := respErr.Response.StatusCode; {
		case status == http.StatusNotFound, status == http.StatusGone:
			return apperr.E(apperr.KindNotFound, op, err)
		case status == http.StatusUnauthorized:
			return apperr.E(apperr.KindAuth, op, err)
		case status == http.StatusForbidden:
			if strings.Contains(strings.ToLower(respErr.Message), "rate limit") {
				return apperr.E(apperr.KindRateLimited, op, err)
			}
			// Blocked or inaccessible repositories are skipped like missing ones.
			return apperr.E(apperr.KindNotFound, op, err)
		case status == http.StatusTooManyRequests:
			return apperr.E(apperr.KindRateLimited, op, err)
		case status == http.StatusUnprocessableEntity:
			return apperr.E(apperr.KindValidation, op, err)
		case status >= 500:
			return apperr.E(apperr.KindTransient, op, err)
		}
		return apperr.E(apperr.KindInternal, op, err)
	}

	// Anything else failed in transport: timeouts, resets, DNS.
	return apperr.E(apperr.KindTransient, op, err)
}
