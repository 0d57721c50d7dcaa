package service

import (
	"errors"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

const genericSubmissionMessage = "Registration could not be completed. Please try again."

var accountErrorMessages = map[string]string{
	models.AccountErrEmailInUse:          "This email address is already registered.",
	models.AccountErrWeakPassword:        "The password is too weak. Choose a longer password.",
	models.AccountErrInvalidEmail:        "The email address is not valid.",
	models.AccountErrOperationNotAllowed: "Account registration is currently disabled. Contact the school office.",
	models.AccountErrNetwork:             "Network error. Check your connection and try again.",
	models.AccountErrTooManyRequests:     "Too many attempts. Wait a few minutes and try again.",
	models.AccountErrPermissionDenied:    "You do not have permission to complete this registration.",
	models.AccountErrUnavailable:         "The service is temporarily unavailable. Please try again later.",
}

// MapAccountError turns an account provider failure into a message fit for the user.
// Unknown codes and non-provider errors yield a generic message.
func MapAccountError(err error) string {
	var accErr *models.AccountError
	if errors.As(err, &accErr) {
		if msg, ok := accountErrorMessages[accErr.Code]; ok {
			return msg
		}
	}
	return genericSubmissionMessage
}
