package classify

import (
	"fmt"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// userMessage returns short, plain text safe to show to clinicians and
// patients. It never includes technical detail.
func userMessage(category Category, dep domain.Dependency) string {
	label := dep.Label()
	switch category {
	case CategoryNetwork:
		return "We're having trouble reaching the network. Please check your connection."
	case CategoryServiceUnavailable:
		return fmt.Sprintf("The %s service is temporarily unavailable.", label)
	case CategoryAuthentication:
		return "Your session has expired. Please sign in again."
	case CategoryPermission:
		return "You don't have permission to do that."
	case CategoryValidation:
		return "Some of the information provided isn't valid. Please review it and try again."
	case CategoryRateLimit:
		return "We're receiving a lot of requests right now. Please wait a moment."
	case CategoryTimeout:
		return fmt.Sprintf("The %s service is taking longer than expected.", label)
	default:
		return "Something went wrong. Please try again."
	}
}

var recoveryActions = map[Category][]string{
	CategoryNetwork: {
		"Check your internet connection",
		"Wait a moment and try again",
		"Switch to a different network if the problem continues",
	},
	CategoryServiceUnavailable: {
		"Wait a few moments and try again",
		"Continue with reduced features while the service recovers",
		"Contact support if the problem persists",
	},
	CategoryAuthentication: {
		"Sign in again",
		"Clear saved credentials and retry",
		"Contact your administrator if you cannot sign in",
	},
	CategoryPermission: {
		"Ask your administrator for access",
		"Confirm you are signed in with the correct account",
	},
	CategoryValidation: {
		"Review the information you entered",
		"Correct any highlighted fields and resubmit",
	},
	CategoryRateLimit: {
		"Wait a minute before trying again",
		"Reduce how often you send requests",
	},
	CategoryTimeout: {
		"Try again",
		"Use a shorter recording or smaller request",
		"Check your connection speed",
	},
	CategoryUnknown: {
		"Try again",
		"Refresh the page",
		"Contact support if the problem persists",
	},
}

// RecoveryActions returns the ordered action list for a category.
func RecoveryActions(category Category) []string {
	actions, ok := recoveryActions[category]
	if !ok {
		actions = recoveryActions[CategoryUnknown]
	}
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}
