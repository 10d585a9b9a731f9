package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeKeyPair writes a self-signed certificate for commonName.
func writeKeyPair(t *testing.T, dir, commonName string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func commonName(t *testing.T, l *CertLoader) string {
	t.Helper()
	cert, err := l.GetCertificate(nil)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf.Subject.CommonName
}

func TestCertLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, "first")

	l, err := NewCertLoader(certFile, keyFile, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, "first", commonName(t, l))

	clock := time.Now()
	l.now = func() time.Time { return clock }

	writeKeyPair(t, dir, "second")
	future := clock.Add(time.Hour)
	require.NoError(t, os.Chtimes(certFile, future, future))

	assert.Equal(t, "first", commonName(t, l), "within the check interval")

	clock = clock.Add(2 * defaultCertCheckInterval)
	assert.Equal(t, "second", commonName(t, l))
}

func TestCertLoader_KeepsOldCertOnError(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, "first")
	l, err := NewCertLoader(certFile, keyFile, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, os.Remove(keyFile))
	clock := time.Now().Add(2 * defaultCertCheckInterval)
	l.now = func() time.Time { return clock }

	assert.Equal(t, "first", commonName(t, l))
	assert.NotNil(t, l.TLSConfig().GetCertificate)
}

func TestNewCertLoader_Missing(t *testing.T) {
	_, err := NewCertLoader("/nonexistent/cert.pem", "/nonexistent/key.pem", slog.New(slog.DiscardHandler))
	assert.ErrorContains(t, err, "failed to load key pair")
}
