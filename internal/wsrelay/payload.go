package wsrelay

import (
	"encoding/json"

	"github.com/router-for-me/authcode/internal/oauth"
	"github.com/router-for-me/authcode/internal/util"
	"github.com/tidwall/sjson"
)

func statusPayload(message string) json.RawMessage {
	payload, _ := sjson.SetBytes([]byte(`{}`), "message", message)
	return payload
}

func errorPayload(message string) json.RawMessage {
	payload, _ := sjson.SetBytes([]byte(`{}`), "error", message)
	return payload
}

func tokensPayload(accessToken, tokenType, refreshToken string, raw bool) json.RawMessage {
	if !raw {
		accessToken = util.HideToken(accessToken)
		refreshToken = util.HideToken(refreshToken)
	}
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "access_token", accessToken)
	payload, _ = sjson.SetBytes(payload, "token_type", tokenType)
	if refreshToken != "" {
		payload, _ = sjson.SetBytes(payload, "refresh_token", refreshToken)
	}
	payload, _ = sjson.SetBytes(payload, "masked", !raw)
	return payload
}

// outcomePayload describes an authorization outcome without the authorization code.
func outcomePayload(outcome oauth.AuthorizationOutcome) json.RawMessage {
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "kind", outcome.Kind.String())
	if outcome.AttemptID != "" {
		payload, _ = sjson.SetBytes(payload, "attempt_id", outcome.AttemptID)
	}
	if outcome.Failure != nil {
		payload, _ = sjson.SetBytes(payload, "error", outcome.Failure.Code)
		if outcome.Failure.Description != "" {
			payload, _ = sjson.SetBytes(payload, "error_description", outcome.Failure.Description)
		}
	}
	return payload
}

func cancelPayload(cancelled bool) json.RawMessage {
	payload, _ := sjson.SetBytes([]byte(`{}`), "kind", oauth.OutcomeCancelled.String())
	payload, _ = sjson.SetBytes(payload, "cancelled", cancelled)
	return payload
}
