package xrocket

import (
	"go.uber.org/zap"
)

// VerifySignature checks the rocket-pay-signature header of a webhook body.
// Real verification is an HMAC-SHA256 of the body keyed with the API secret;
// no webhook consumer exists yet, so for now every signature passes.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	c.logger.Warn("webhook signature verification is stubbed",
		zap.Int("body_len", len(body)), zap.String("signature", signature))
	return true
}
