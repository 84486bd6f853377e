// Command keygen writes an RSA key pair in the layout expected by
// AUTH_PRIVATE_KEY_PATH and AUTH_PUBLIC_KEY_PATH.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	out := flag.String("out", "config/jwtRS256.key", "private key path, the public key gets a .pub suffix")
	bits := flag.Int("bits", 4096, "RSA key size")
	force := flag.Bool("force", false, "overwrite existing keys")
	flag.Parse()

	if err := generate(*out, *bits, *force); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s and %s.pub\n", *out, *out)
}

func generate(path string, bits int, force bool) error {
	if bits < 2048 {
		return fmt.Errorf("key size %d is too small", bits)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s exists, use -force to replace it", path)
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return err
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, privPEM, 0o600); err != nil {
		return err
	}

	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	return os.WriteFile(path+".pub", pubPEM, 0o644)
}
