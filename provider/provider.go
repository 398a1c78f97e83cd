// Package provider implements phrasebook.Provider for the supported
// translation backends: Google Cloud Translation, OpenAI chat models and an
// offline phrasebook, plus a scriptable mock.
//
// Every backend failure is reported as a *phrasebook.ProviderError so the
// orchestrator can advance without knowing backend details.
package provider

import (
	"net/http"

	"github.com/ZaguanLabs/phrasebook"
)

// outcomeForStatus maps an HTTP status from a translation backend onto an outcome.
func outcomeForStatus(status int) phrasebook.Outcome {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return phrasebook.OutcomeAuthError
	case status == http.StatusTooManyRequests:
		return phrasebook.OutcomeQuotaExceeded
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return phrasebook.OutcomeTimeout
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return phrasebook.OutcomeUnsupported
	default:
		return phrasebook.OutcomeNetworkError
	}
}
