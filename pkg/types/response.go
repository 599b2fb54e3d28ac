package types

// Every JSON body carries a success flag so storefront clients can branch
// on one field, matching the checkout response shape.

type SuccessEnvelope struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
}

// APIError is the public part of a failed request. Causes never appear here.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}
