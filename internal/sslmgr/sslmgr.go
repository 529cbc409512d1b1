// Package sslmgr validates and, when needed, regenerates the
// self-signed TLS certificate PostgreSQL uses for client connections.
package sslmgr

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Paths locates the certificate, private key, and self-signed CA file
// a node uses for PostgreSQL client-server TLS.
type Paths struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// ForDir builds the conventional cert/key/CA layout under a directory.
func ForDir(dir string) Paths {
	return Paths{
		CertFile: filepath.Join(dir, "server.crt"),
		KeyFile:  filepath.Join(dir, "server.key"),
		CAFile:   filepath.Join(dir, "root.crt"),
	}
}

const certLifetime = 365 * 24 * time.Hour

// IsValidX509v3Cert reports whether cert_path exists, parses as a PEM
// X.509 certificate, and carries "localhost" among its DNS Subject
// Alternative Names. A missing file is not an error: absence means
// "invalid, must regenerate".
func IsValidX509v3Cert(certPath string) (bool, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read certificate file: %w", err)
	}

	cert, err := parsePEMCertificate(data)
	if err != nil {
		return false, fmt.Errorf("failed to parse certificate as PEM: %w", err)
	}

	for _, name := range cert.DNSNames {
		if name == "localhost" {
			return true, nil
		}
	}
	return false, nil
}

// CertExpiresWithin reports whether the certificate at certPath will
// expire within the given duration. A missing certificate is treated
// as "needs renewal" rather than an error.
func CertExpiresWithin(certPath string, within time.Duration) (bool, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read certificate file: %w", err)
	}

	cert, err := parsePEMCertificate(data)
	if err != nil {
		return false, fmt.Errorf("failed to parse certificate as PEM: %w", err)
	}

	return time.Until(cert.NotAfter) < within, nil
}

func parsePEMCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return x509.ParseCertificate(block.Bytes)
}

// EnsureCert validates the certificate at paths and regenerates a
// fresh self-signed one if it is missing, malformed, missing the
// localhost SAN, or expiring within renewBefore. Returns true if a new
// certificate was written.
func EnsureCert(paths Paths, renewBefore time.Duration) (bool, error) {
	valid, err := IsValidX509v3Cert(paths.CertFile)
	if err != nil {
		return false, err
	}

	expiring := true
	if valid {
		expiring, err = CertExpiresWithin(paths.CertFile, renewBefore)
		if err != nil {
			return false, err
		}
	}

	if valid && !expiring {
		return false, nil
	}

	if err := generateSelfSignedCert(paths); err != nil {
		return false, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	return true, nil
}

func generateSelfSignedCert(paths Paths) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "localhost",
			Organization: []string{"postgres-ha-supervisor"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certLifetime),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(paths.CertFile), 0o755); err != nil {
		return err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	if err := os.WriteFile(paths.CertFile, certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(paths.CAFile, certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write CA bundle: %w", err)
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})
	if err := os.WriteFile(paths.KeyFile, keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}
