package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultKeyID is used when the configuration does not name one
const DefaultKeyID = "pvt-session"

// KeyMaterial holds the process wide signing and verification keys.
// It is built once at startup and never mutated, so a single pointer can
// be shared by every request.
type KeyMaterial struct {
	method    jwt.SigningMethod
	keyID     string
	signKey   any
	verifyKey any
	keyfunc   jwt.Keyfunc
}

// NewRSAKeyMaterial builds RS256 key material from a private key.
func NewRSAKeyMaterial(priv *rsa.PrivateKey, kid string) (*KeyMaterial, error) {
	if priv == nil {
		return nil, fmt.Errorf("rsa private key is required")
	}
	return newKeyMaterial(jwt.SigningMethodRS256, kid, priv, &priv.PublicKey), nil
}

// NewRSAVerifier builds verify only RS256 key material. Services that only
// guard routes never need the private key.
func NewRSAVerifier(pub *rsa.PublicKey, kid string) (*KeyMaterial, error) {
	if pub == nil {
		return nil, fmt.Errorf("rsa public key is required")
	}
	return newKeyMaterial(jwt.SigningMethodRS256, kid, nil, pub), nil
}

// NewHMACKeyMaterial builds HS256 key material from a shared secret.
func NewHMACKeyMaterial(secret []byte, kid string) (*KeyMaterial, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("hmac secret is required")
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return newKeyMaterial(jwt.SigningMethodHS256, kid, key, key), nil
}

// ParseRSAKeyMaterial reads PEM encoded keys. pubPEM may be empty, in which
// case the public half of the private key is used. privPEM may be empty
// to build a verifier.
func ParseRSAKeyMaterial(privPEM, pubPEM []byte, kid string) (*KeyMaterial, error) {
	var pub *rsa.PublicKey
	if len(pubPEM) > 0 {
		var err error
		pub, err = jwt.ParseRSAPublicKeyFromPEM(pubPEM)
		if err != nil {
			return nil, fmt.Errorf("parse rsa public key: %w", err)
		}
	}

	if len(privPEM) == 0 {
		return NewRSAVerifier(pub, kid)
	}

	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}

	if pub != nil && !priv.PublicKey.Equal(pub) {
		return nil, fmt.Errorf("rsa public key does not match private key")
	}

	return NewRSAKeyMaterial(priv, kid)
}

// LoadKeyMaterial reads the keys named by the configuration. It touches the
// filesystem and must only run during startup.
func LoadKeyMaterial(cfg Config) (*KeyMaterial, error) {
	kid := cfg.GetKeyID()

	switch strings.ToUpper(cfg.GetSigningMethod()) {
	case "", jwt.SigningMethodRS256.Alg():
		privPEM, err := readOptional(cfg.GetPrivateKeyPath())
		if err != nil {
			return nil, err
		}
		pubPEM, err := readOptional(cfg.GetPublicKeyPath())
		if err != nil {
			return nil, err
		}
		if len(privPEM) == 0 && len(pubPEM) == 0 {
			return nil, fmt.Errorf("no rsa key files configured")
		}
		return ParseRSAKeyMaterial(privPEM, pubPEM, kid)
	case jwt.SigningMethodHS256.Alg():
		return NewHMACKeyMaterial([]byte(cfg.GetSigningKey()), kid)
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.GetSigningMethod())
	}
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	return b, nil
}

func newKeyMaterial(method jwt.SigningMethod, kid string, signKey, verifyKey any) *KeyMaterial {
	if kid == "" {
		kid = DefaultKeyID
	}

	km := &KeyMaterial{
		method:    method,
		keyID:     kid,
		signKey:   signKey,
		verifyKey: verifyKey,
	}

	given := map[string]keyfunc.GivenKey{}
	opts := keyfunc.GivenKeyOptions{Algorithm: method.Alg()}
	switch k := verifyKey.(type) {
	case *rsa.PublicKey:
		given[kid] = keyfunc.NewGivenRSA(k, opts)
	case []byte:
		given[kid] = keyfunc.NewGivenHMAC(k, opts)
	}
	km.keyfunc = keyfunc.NewGiven(given).Keyfunc

	return km
}

// Method returns the signing method
func (k *KeyMaterial) Method() jwt.SigningMethod {
	return k.method
}

// KeyID is written to the kid header of every signed token
func (k *KeyMaterial) KeyID() string {
	return k.keyID
}

// CanSign is false for verify only material
func (k *KeyMaterial) CanSign() bool {
	return k.signKey != nil
}

func (k *KeyMaterial) signingKey() any {
	return k.signKey
}

// Keyfunc resolves the verification key by the token kid header.
func (k *KeyMaterial) Keyfunc() jwt.Keyfunc {
	return k.keyfunc
}

// JWK is a single public key in a JSON Web Key Set
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is the document served at the well known JWKS path
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKS returns the public key set. HMAC material never publishes keys.
func (k *KeyMaterial) JWKS() JWKSet {
	set := JWKSet{Keys: []JWK{}}
	pub, ok := k.verifyKey.(*rsa.PublicKey)
	if !ok {
		return set
	}

	set.Keys = append(set.Keys, JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: k.method.Alg(),
		Kid: k.keyID,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	})
	return set
}
