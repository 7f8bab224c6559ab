package rest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	pathPrepareSignin = "/v1/offchain/prepare-signin"
	pathLogin         = "/v1/offchain/login"
)

// MessageSigner personal-signs the login challenge.
type MessageSigner interface {
	SignMessage(message string) (string, error)
}

// PrepareSignin asks the auth host for a signin challenge bound to requestID.
func (c *Client) PrepareSignin(ctx context.Context, chain, address, requestID string) (string, error) {
	body := map[string]string{"address": address, "requestId": requestID}
	data, err := c.post(ctx, c.geoEndpoint(pathPrepareSignin, chain), body, public)
	if err != nil {
		return "", err
	}
	resp, err := asMap(data, pathPrepareSignin)
	if err != nil {
		return "", err
	}
	if ok, _ := resp["success"].(bool); !ok {
		return "", fmt.Errorf("prepare signin rejected: %v", resp["message"])
	}
	signedData, _ := resp["signedData"].(string)
	if signedData == "" {
		return "", errors.New("prepare signin: missing signedData")
	}
	return signedData, nil
}

func (c *Client) Login(ctx context.Context, chain, signature, signedData string, ttl time.Duration) (string, error) {
	body := map[string]any{
		"signature":      signature,
		"signedData":     signedData,
		"expiresSeconds": int64(ttl / time.Second),
	}
	data, err := c.post(ctx, c.geoEndpoint(pathLogin, chain), body, public)
	if err != nil {
		return "", err
	}
	resp, err := asMap(data, pathLogin)
	if err != nil {
		return "", err
	}
	token, _ := resp["token"].(string)
	if token == "" {
		return "", fmt.Errorf("login: missing token: %v", resp["message"])
	}
	return token, nil
}

// WalletLogin runs the prepare/sign/login handshake and returns the token.
func (c *Client) WalletLogin(ctx context.Context, chain, address, requestID string, signer MessageSigner, ttl time.Duration) (string, error) {
	signedData, err := c.PrepareSignin(ctx, chain, address, requestID)
	if err != nil {
		return "", err
	}
	message, err := SigninMessage(signedData)
	if err != nil {
		return "", err
	}
	signature, err := signer.SignMessage(message)
	if err != nil {
		return "", fmt.Errorf("sign login message: %w", err)
	}
	return c.Login(ctx, chain, signature, signedData, ttl)
}

// SigninMessage extracts the message claim from the signedData JWT. The token
// is signed by the auth host and only read here, so it is not verified.
func SigninMessage(signedData string) (string, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(signedData, claims)
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return "", fmt.Errorf("parse signedData: %w", err)
	}
	message, _ := claims["message"].(string)
	if message == "" {
		return "", errors.New("signedData payload has no message")
	}
	return message, nil
}

func (c *Client) geoEndpoint(path, chain string) string {
	return c.geoURL + path + "?" + url.Values{"chain": {chain}}.Encode()
}
