//go:build ignore

// mock-auth-server.go - Mock identity provider for local testing
//
// Usage:
//   go run scripts/mock-auth-server.go
//
// It serves a JWKS endpoint and issues RS256 tokens the API server will
// accept when configured with:
//
//   jwks:
//     url: http://localhost:8180/jwks
//     issuer: http://localhost:8180
//
// The signing key is generated at startup; tokens are for local use only.

package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	port   = 8180
	keyID  = "local-dev-key"
	issuer = "http://localhost:8180"
)

var signingKey *rsa.PrivateKey

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func main() {
	var err error
	signingKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Fatalf("failed to generate signing key: %v", err)
	}

	http.HandleFunc("/jwks", handleJWKS)
	http.HandleFunc("/token", handleToken)
	http.HandleFunc("/health", handleHealth)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Mock auth server starting on http://localhost%s", addr)
	log.Printf("GET  /jwks   - JWKS document for the API server")
	log.Printf("POST /token  - Returns an RS256 JWT (form fields: sub, username)")
	log.Printf("GET  /health - Health check")
	log.Fatal(http.ListenAndServe(addr, nil))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func handleJWKS(w http.ResponseWriter, _ *http.Request) {
	pub := &signingKey.PublicKey
	jwks := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": keyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jwks)
}

func handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	sub := r.FormValue("sub")
	if sub == "" {
		sub = "local-user"
	}
	username := r.FormValue("username")
	if username == "" {
		username = sub
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                issuer,
		"sub":                sub,
		"preferred_username": username,
		"iat":                now.Unix(),
		"exp":                now.Add(24 * time.Hour).Unix(),
	})
	token.Header["kid"] = keyID

	signed, err := token.SignedString(signingKey)
	if err != nil {
		http.Error(w, "Failed to sign token", http.StatusInternalServerError)
		return
	}

	resp := tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   86400,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)

	log.Printf("Issued token for sub=%s username=%s", sub, username)
}
